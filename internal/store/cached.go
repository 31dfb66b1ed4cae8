package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nikhilbhutani/promptkeeper/internal/cache"
)

// Cached serves point reads from Redis and invalidates on every write. Cache
// failures degrade to the underlying store. A read only fills the cache if no
// invalidation of the path landed while it was loading, so a slow reader
// cannot park a value older than a concurrent write.
type Cached struct {
	inner Store
	cache *cache.Cache
}

func NewCached(inner Store, c *cache.Cache) *Cached {
	return &Cached{inner: inner, cache: c}
}

func (s *Cached) Get(ctx context.Context, p string) (json.RawMessage, error) {
	data, err := s.cache.Get(ctx, p)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("cache read failed", "path", p, "error", err)
	}

	version, verr := s.cache.Version(ctx, p)
	raw, err := s.inner.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		slog.Warn("cache version read failed", "path", p, "error", verr)
		return raw, nil
	}
	err = s.cache.SetIfVersion(ctx, p, raw, version)
	if err != nil && !errors.Is(err, cache.ErrStale) {
		slog.Warn("cache fill failed", "path", p, "error", err)
	}
	return raw, nil
}

func (s *Cached) Set(ctx context.Context, p string, value any) error {
	if err := s.inner.Set(ctx, p, value); err != nil {
		return err
	}
	s.invalidate(ctx, p, false)
	return nil
}

func (s *Cached) Remove(ctx context.Context, p string) error {
	if err := s.inner.Remove(ctx, p); err != nil {
		return err
	}
	s.invalidate(ctx, p, true)
	return nil
}

func (s *Cached) Update(ctx context.Context, updates map[string]any) error {
	if err := s.inner.Update(ctx, updates); err != nil {
		return err
	}
	for p, v := range updates {
		s.invalidate(ctx, p, v == nil)
	}
	return nil
}

func (s *Cached) Mutate(ctx context.Context, p string, fn MutateFunc) error {
	var written map[string]any
	err := s.inner.Mutate(ctx, p, func(current json.RawMessage) (map[string]any, error) {
		updates, err := fn(current)
		written = updates
		return updates, err
	})
	if err != nil {
		return err
	}
	for up, v := range written {
		s.invalidate(ctx, up, v == nil)
	}
	return nil
}

func (s *Cached) QueryEqual(ctx context.Context, collection, field string, value any) ([]Record, error) {
	return s.inner.QueryEqual(ctx, collection, field, value)
}

func (s *Cached) List(ctx context.Context, collection string) ([]Record, error) {
	return s.inner.List(ctx, collection)
}

func (s *Cached) invalidate(ctx context.Context, p string, subtree bool) {
	if err := s.cache.Delete(ctx, p); err != nil {
		slog.Warn("cache invalidate failed", "path", p, "error", err)
	}
	if subtree {
		if err := s.cache.DeletePrefix(ctx, p+"/"); err != nil {
			slog.Warn("cache invalidate failed", "path", p, "error", err)
		}
	}
}
