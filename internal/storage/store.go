package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the key has no value.
var ErrNotFound = errors.New("storage: not found")

// Store is a string-keyed byte store without expiry. Expiry policy lives in
// the layer above it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
