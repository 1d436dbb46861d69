// Package cache provides a small byte-oriented cache used to keep hot
// ledger reads off the database. It is a pure performance layer: callers
// must never base mutation decisions on cached values.
package cache

import (
	"context"
	"time"
)

// Cache is the read-cache contract injected into the ledger engine.
// Implementations must make Invalidate take effect before returning, so a
// read issued immediately after a mutation observes fresh data.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Invalidate removes key synchronously.
	Invalidate(ctx context.Context, key string)
}
