package redisclient

import (
	"context"
	"time"

	"column-indexer/internal/config"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
)

// New creates a Redis client from configuration.
func New(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// WaitReady pings the server until it answers or attempts run out.
func WaitReady(ctx context.Context, rdb *redis.Client, attempts uint) error {
	return retry.Do(
		func() error {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return rdb.Ping(pctx).Err()
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
