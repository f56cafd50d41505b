package webscrape

import (
	"context"
	"time"
)

// MetaFinalURL is the metadata field recording where a redirected request
// finally resolved.
const MetaFinalURL = "final_url"

// CacheEntry is a single cached response.
// An empty Value is a negative entry: a fetch that is known to have failed.
type CacheEntry struct {
	Key       string
	Value     string
	Meta      map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fresh reports whether the entry is still usable at now under ttl.
// A zero ttl means entries never expire.
func (e *CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.UpdatedAt) < ttl
}

// Cache is a persistent key-value store for fetched responses with a
// metadata side table.
type Cache interface {
	// Get returns the value stored for key.
	// Returns ENOTFOUND if the key is absent or its entry is stale.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. Writes may be buffered until Flush.
	Set(ctx context.Context, key, value string) error

	// GetMeta returns the metadata stored for key.
	// Returns ENOTFOUND if the key is absent or its entry is stale.
	GetMeta(ctx context.Context, key string) (map[string]string, error)

	// SetMeta replaces the metadata stored for key.
	SetMeta(ctx context.Context, key string, meta map[string]string) error

	// Contains reports whether a fresh entry exists for key.
	Contains(ctx context.Context, key string) bool

	// Clear deletes every entry immediately, bypassing the write buffer.
	Clear(ctx context.Context) error

	// Flush writes any buffered entries in a single transaction.
	Flush(ctx context.Context) error
}
