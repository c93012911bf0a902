// Package cache provides the TTL response cache backing the fulfillment
// pipeline, with in-memory and Redis backends.
package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached upstream response payload with an absolute expiry.
type Entry struct {
	// Payload is the JSON-shaped upstream response body.
	Payload json.RawMessage `json:"payload"`

	// Expires is when the entry becomes logically stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`

	// QuotaExhausted records the quota flag observed at write time.
	// A hit on a tainted entry is reported stale rather than fresh.
	QuotaExhausted bool `json:"quota_exhausted,omitempty"`
}

// NewEntry creates an entry expiring ttl from now.
func NewEntry(payload json.RawMessage, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Payload:  payload,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the entry is logically stale.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until logical expiry, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
