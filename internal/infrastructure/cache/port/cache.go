package port

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract used by the client, today
// only for geocode results. Implementations must be concurrency-safe.
// Values are stored as strings; serialization is the caller's concern.
type Cache interface {
	// Get fetches the value for key, returning ErrMiss when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. Zero or negative TTL means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Close releases any resources held by the cache.
	Close() error
}

// ErrMiss signals a cache miss in a typed way so callers can tell
// misses apart from transport errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cache: miss" }
