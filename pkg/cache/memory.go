package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MemoryStore is the default in-process Store. Reads treat expired entries
// as absent; the entries stay physically present for the stale retention
// window so the pipeline can fall back to them, and are removed by the
// periodic sweep afterwards.
type MemoryStore struct {
	mu             sync.RWMutex
	entries        map[string]*Entry
	staleRetention time.Duration
	logger         zerolog.Logger
}

// NewMemoryStore creates an empty in-memory store. staleRetention bounds how
// long expired entries remain physically present; <= 0 keeps them until an
// explicit flush.
func NewMemoryStore(staleRetention time.Duration, logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		entries:        make(map[string]*Entry),
		staleRetention: staleRetention,
		logger:         logger,
	}
}

// Get returns the live entry for key, or ErrCacheMiss if absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory", "live").Inc()
	return entry, nil
}

// GetStale returns the entry for key even if logically expired.
func (s *MemoryStore) GetStale(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory", "stale").Inc()
	return entry, nil
}

// Set inserts or overwrites the entry for key.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		CacheErrors.WithLabelValues("set").Inc()
		return ErrInvalidEntry
	}

	s.mu.Lock()
	s.entries[key] = entry
	size := len(s.entries)
	s.mu.Unlock()

	CacheEntries.WithLabelValues("memory").Set(float64(size))
	return nil
}

// Keys returns all physically present keys.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of physically present entries.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// FlushAll clears all entries and returns the count cleared.
func (s *MemoryStore) FlushAll(_ context.Context) (int, error) {
	s.mu.Lock()
	cleared := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	CacheEntries.WithLabelValues("memory").Set(0)
	s.logger.Info().Int("cleared_keys", cleared).Msg("Cache flushed")
	return cleared, nil
}

// Sweep removes entries that have been expired longer than the stale
// retention window and returns the number removed. Housekeeping only: Get
// already treats expired entries as absent.
func (s *MemoryStore) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		cutoff := entry.Expires
		if s.staleRetention > 0 {
			cutoff = cutoff.Add(s.staleRetention)
		} else {
			continue
		}
		if now.After(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	size := len(s.entries)
	s.mu.Unlock()

	if removed > 0 {
		CacheSweepRemoved.Add(float64(removed))
		CacheEntries.WithLabelValues("memory").Set(float64(size))
		s.logger.Debug().Int("removed", removed).Int("remaining", size).Msg("Cache sweep completed")
	}
	return removed
}

// StartSweeping runs the periodic sweep until ctx is cancelled. Runs in its
// own goroutine; never blocks request handling.
func (s *MemoryStore) StartSweeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 120 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
