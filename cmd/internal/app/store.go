package app

import (
	"context"
	"fmt"

	"securechat/cmd/internal/kv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// openStore opens the configured kv backend. The returned pool is non-nil
// only for Postgres; the app owns its lifecycle and closes it after the store.
func openStore(ctx context.Context, cfg Config, log Logger) (kv.Store, *pgxpool.Pool, error) {
	var (
		st   kv.Store
		pool *pgxpool.Pool
		err  error
	)

	switch cfg.Storage {
	case StorageMemory:
		st = kv.NewMemoryStore()
	case StorageBolt:
		st, err = kv.OpenBolt(cfg.StoragePath)
	case StorageSQLite:
		st, err = kv.OpenSQLite(cfg.StoragePath)
	case StoragePostgres:
		pool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		var pg *kv.PostgresStore
		pg, err = kv.NewPostgresStore(pool, kv.WithSchema(cfg.DBSchema))
		if err == nil {
			err = pg.EnsureSchema(ctx)
		}
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		st = pg
	default:
		return nil, nil, fmt.Errorf("app: unknown storage backend %q", cfg.Storage)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("app: open %s store: %w", cfg.Storage, err)
	}

	log.Info("store.open", "backend", cfg.Storage, "path", cfg.StoragePath, "cache_ttl", cfg.CacheTTL)

	if cfg.CacheTTL > 0 {
		st = kv.NewCachedStore(st, cfg.CacheTTL)
	}
	return st, pool, nil
}
