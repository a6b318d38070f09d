// Package ttlcache layers time-based expiry over a storage.Store.
//
// Entries are JSON documents carrying the write time in epoch milliseconds.
// Expiry is lazy: a Get that finds a stale or unreadable entry deletes it and
// reports a miss. There is no background sweep.
package ttlcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"column-indexer/internal/storage"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 24 * time.Hour

// Entry is the stored envelope around a cached value.
type Entry[V any] struct {
	Value    V     `json:"value"`
	StoredAt int64 `json:"stored_at"`
}

// Cache is a typed TTL cache.
type Cache[V any] struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time
}

// Option customizes a Cache.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache over store.
func New[V any](store storage.Store, opts ...Option) *Cache[V] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{store: store, ttl: o.ttl, now: o.now}
}

// TTL reports the configured lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns the value under key if present and fresh.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	b, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("ttlcache: store read failed", "key", key, "error", err)
		}
		return zero, false
	}
	var e Entry[V]
	if err := json.Unmarshal(b, &e); err != nil {
		slog.Warn("ttlcache: dropping unreadable entry", "key", key, "error", err)
		c.evict(ctx, key)
		return zero, false
	}
	age := c.now().Sub(time.UnixMilli(e.StoredAt))
	if age >= c.ttl {
		c.evict(ctx, key)
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key, replacing any previous entry.
func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	b, err := json.Marshal(Entry[V]{Value: value, StoredAt: c.now().UnixMilli()})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, b)
}

// Remove deletes key.
func (c *Cache[V]) Remove(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *Cache[V]) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		slog.Warn("ttlcache: evict failed", "key", key, "error", err)
	}
}
