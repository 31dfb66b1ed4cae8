package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptkeeper/internal/cache"
	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/database"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

const cachePrefix = "promptkeeper:records:"

// Backends are the connections behind the record store. DB and Redis are nil
// when not configured or not reachable.
type Backends struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Store store.Store
}

// OpenBackends connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise. A reachable Redis fronts the store with
// the record cache.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory record store")
		b.Store = store.NewMemory()
	} else {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		b.DB = db
		b.Store = store.NewPostgres(db)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, running without cache and queue", "error", err)
			rdb.Close()
		} else {
			b.Redis = rdb
		}
	}

	if b.Redis != nil && cfg.Redis.CacheTTL() > 0 {
		b.Store = store.NewCached(b.Store, cache.NewCache(b.Redis, cachePrefix, cfg.Redis.CacheTTL()))
	}
	return b, nil
}

func (b *Backends) Close() {
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
