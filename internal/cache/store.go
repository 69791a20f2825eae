// Package cache provides the read-through cache used for list and stats
// queries. Keys are explicit functions of entity, filters and page, and
// writes invalidate whole entities by bumping a generation counter.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the minimal key/value contract shared by the Redis and in-memory
// backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}
