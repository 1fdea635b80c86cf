// Package resultcache caches raw query rows and counts. Entries are msgpack-encoded
// byte slices stored in a pluggable Cache, keyed by region name and a hash of the
// rendered SQL and its arguments.
package resultcache

import (
	"context"
	"time"
)

// Cache is the storage behind the result cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}
