// Package cache provides the TTL key/value store used by the data
// orchestration layer to avoid redundant network calls. The in-memory
// implementation is the contract implementation; a Redis adapter exists
// for deployments that share one cache across replicas. Nothing stored
// here is durable.
package cache

import (
	"context"
	"time"
)

// Stats describes the current cache contents for diagnostics.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Store is a key to (value, expiry) map. Writes always replace whole
// entries; readers never observe a partially written entry. Expired
// entries are lazily evicted on access and never returned.
type Store interface {
	// Set stores value under key with expiresAt = now + ttl, overwriting
	// any prior entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the stored value only while it is unexpired. The second
	// return is false on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Invalidate removes a single entry.
	Invalidate(ctx context.Context, key string) error
	// Clear empties the store.
	Clear(ctx context.Context) error
	// Stats reports entry count and keys.
	Stats(ctx context.Context) (Stats, error)
}
