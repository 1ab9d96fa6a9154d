// Package keycache holds the exported vault key between process restarts.
//
// The cache is volatile by contract: entries carry a TTL equal to the
// auto-lock duration and must never reach durable storage. A Redis
// instance without persistence or the in-process Memory cache both
// satisfy that.
package keycache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no export is present or it has expired.
var ErrNotFound = errors.New("keycache: no exported key")

// Cache stores a single exported key.
type Cache interface {
	Put(ctx context.Context, key []byte, ttl time.Duration) error
	Get(ctx context.Context) ([]byte, error)
	// Touch extends the TTL of a present export; a missing one is not an error.
	Touch(ctx context.Context, ttl time.Duration) error
	Delete(ctx context.Context) error
}
