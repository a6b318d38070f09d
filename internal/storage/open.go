package storage

import (
	"context"
	"fmt"

	"column-indexer/internal/config"
	"column-indexer/internal/redisclient"
)

// Open builds the Store selected by cfg.Cache.Backend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redisclient.New(cfg.Redis)
		if err := redisclient.WaitReady(ctx, rdb, 3); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis %s not reachable: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(rdb), nil
	case "badger":
		return OpenBadger(cfg.Cache.Path)
	case "sqlite":
		return OpenSQLite(cfg.Cache.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
