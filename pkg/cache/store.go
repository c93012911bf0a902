package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found or is expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the TTL cache contract used by the fulfillment pipeline.
//
// Get treats logically expired entries as absent; GetStale returns them
// anyway so the pipeline can degrade to stale data when the upstream is
// unavailable. Expired entries may remain physically present until swept.
type Store interface {
	// Get returns the live entry for key, or ErrCacheMiss if absent or
	// expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// GetStale returns the entry for key even if logically expired, or
	// ErrCacheMiss if physically absent.
	GetStale(ctx context.Context, key string) (*Entry, error)

	// Set inserts or overwrites the entry for key.
	Set(ctx context.Context, key string, entry *Entry) error

	// Keys returns all physically present keys. Observability only, not
	// used for lookups.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of physically present entries.
	Len(ctx context.Context) (int, error)

	// FlushAll clears all entries and returns the count cleared.
	FlushAll(ctx context.Context) (int, error)
}
