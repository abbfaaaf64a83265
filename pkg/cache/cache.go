// Package cache provides the default implementations of the cache
// collaborator: an in-memory TTL store for single-process use and a
// sqlite-backed store that survives restarts. Callers treat hits and
// misses as transparent to correctness; only latency differs.
package cache

import "time"

// Store is the cache collaborator interface the runtime consumes.
type Store interface {
	// GetOrCompute returns the cached value for key when present and
	// fresh, otherwise runs compute, stores its result under key with
	// the given ttl, and returns it. A ttl <= 0 means no expiry.
	GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error)

	// Invalidate drops the entry for key, if any.
	Invalidate(key string)
}
