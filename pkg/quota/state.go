// Package quota tracks upstream quota exhaustion for the proxy process.
// It holds a process-wide flag flipped by the upstream client on a
// quota-exceeded signal and cleared only by a successful, debounced probe.
package quota

import (
	"time"
)

// DefaultDebounce is the minimum interval between active health probes.
const DefaultDebounce = 300 * time.Second

// Snapshot is a point-in-time view of the quota state.
type Snapshot struct {
	// Exhausted is true while the upstream quota is believed spent.
	Exhausted bool `json:"exhausted"`

	// LastCheckedAt is when the state was last probed or updated.
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// OK reports whether upstream calls may be attempted.
func (s Snapshot) OK() bool {
	return !s.Exhausted
}

// ShouldProbe decides whether an active health probe may run. Pure function
// of the inputs so the debounce logic is testable without a wall clock.
// A zero lastCheckedAt always allows probing.
func ShouldProbe(now, lastCheckedAt time.Time, debounce time.Duration) bool {
	if lastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(lastCheckedAt) >= debounce
}
