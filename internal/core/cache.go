package core

import (
	"context"
	"time"
)

// CacheRepository defines the key/value operations the dispatcher needs from a shared cache.
// Implementations live in the data layer.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it is absent and reports whether it was set.
	// Alert de-duplication relies on it.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Health(ctx context.Context) error
}
