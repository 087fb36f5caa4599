package core

import (
	"context"
	"time"
)

// Cache[T] defines the primitive operations for a key-value cache with TTL.
// T is the type of value stored in the cache (e.g. bool, string, or a struct).
//
// The consumed-state ledger runs on this interface: a nonce is Set when a
// callback consumes its state, and a later Get hit means replay.
type Cache[T any] interface {
	// Get retrieves a single value from cache.
	// Returns ErrCacheMiss if the key does not exist or has expired.
	Get(ctx context.Context, key string) (T, error)

	// Set stores a single value in cache with TTL
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error

	// Health checks if the cache is healthy
	Health(ctx context.Context) error
}
