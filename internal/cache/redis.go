package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get when the key is not cached.
	ErrMiss = errors.New("cache miss")
	// ErrStale is returned by SetIfVersion when the key was invalidated
	// after the version was read.
	ErrStale = errors.New("cache version changed")
)

// Cache stores raw JSON documents under a key prefix with a fixed TTL. Keys
// are slash-separated paths. Every invalidation bumps a generation counter for
// the key, and a key's version is the sum of its own and its ancestors'
// generations, so dropping a subtree also moves the version of every key
// beneath it.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) genKey(k string) string { return c.prefix + "gen:" + k }

// genKeys lists the generation keys covering k: k itself and each ancestor.
func (c *Cache) genKeys(k string) []string {
	parts := strings.Split(k, "/")
	keys := make([]string, len(parts))
	for i := range parts {
		keys[i] = c.genKey(strings.Join(parts[:i+1], "/"))
	}
	return keys
}

// genTTL outlives any fill that could have read the previous generation.
func (c *Cache) genTTL() time.Duration {
	return max(2*c.ttl, time.Minute)
}

// mgetter is satisfied by both *redis.Client and *redis.Tx.
type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (c *Cache) version(ctx context.Context, cmd mgetter, key string) (int64, error) {
	vals, err := cmd.MGet(ctx, c.genKeys(key)...).Result()
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("generation of %s: %w", key, err)
		}
		sum += n
	}
	return sum, nil
}

// Version reads the current invalidation version of key. Read it before
// loading the value to cache and hand it to SetIfVersion.
func (c *Cache) Version(ctx context.Context, key string) (int64, error) {
	v, err := c.version(ctx, c.client, key)
	if err != nil {
		return 0, fmt.Errorf("cache version %s: %w", key, err)
	}
	return v, nil
}

// SetIfVersion stores data only if key has not been invalidated since its
// version was read. It returns ErrStale otherwise.
func (c *Cache) SetIfVersion(ctx context.Context, key string, data []byte, version int64) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(key), data, c.ttl)
			return nil
		})
		return err
	}, c.genKeys(key)...)
	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrStale):
		return ErrStale
	case err != nil:
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// bump drops the given data keys and advances the generation of each name.
func (c *Cache) bump(ctx context.Context, dataKeys []string, names ...string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(dataKeys) > 0 {
			pipe.Del(ctx, dataKeys...)
		}
		for _, n := range names {
			pipe.Incr(ctx, c.genKey(n))
			pipe.Expire(ctx, c.genKey(n), c.genTTL())
		}
		return nil
	})
	return err
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.bump(ctx, full, keys...); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePrefix drops every cached key beneath prefix and moves the version of
// every key under it.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	if root := strings.TrimSuffix(prefix, "/"); root != "" {
		if err := c.bump(ctx, nil, root); err != nil {
			return fmt.Errorf("cache delete %s: %w", prefix, err)
		}
	}
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
