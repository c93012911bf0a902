package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// keyPrefix namespaces all proxy entries in Redis.
const keyPrefix = "ytproxy:"

// RedisStore is a Redis-backed Store. Entries are written with a physical
// Redis TTL of logical TTL plus the stale retention window, so logically
// expired entries remain available for stale serving until Redis drops them.
type RedisStore struct {
	redis          *redis.Client
	staleRetention time.Duration
	logger         zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, staleRetention time.Duration, logger zerolog.Logger) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:          client,
		staleRetention: staleRetention,
		logger:         logger,
	}
}

// Get returns the live entry for key, or ErrCacheMiss if absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis", "live").Inc()
	return entry, nil
}

// GetStale returns the entry for key even if logically expired.
func (s *RedisStore) GetStale(ctx context.Context, key string) (*Entry, error) {
	entry, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	CacheHits.WithLabelValues("redis", "stale").Inc()
	return entry, nil
}

func (s *RedisStore) fetch(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Set inserts or overwrites the entry for key. The physical Redis TTL covers
// the stale retention window beyond logical expiry.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		CacheErrors.WithLabelValues("set").Inc()
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	physicalTTL := entry.TTL() + s.staleRetention
	if physicalTTL <= 0 {
		// Nothing to retain.
		return nil
	}

	if err := s.redis.Set(ctx, keyPrefix+key, data, physicalTTL).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Keys returns all physically present keys (without the Redis prefix).
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Len returns the number of physically present entries.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// FlushAll clears all proxy entries and returns the count cleared. Only keys
// under the proxy prefix are touched.
func (s *RedisStore) FlushAll(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("flush").Inc()
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}

	if err := s.redis.Del(ctx, prefixed...).Err(); err != nil {
		CacheErrors.WithLabelValues("flush").Inc()
		return 0, fmt.Errorf("redis del: %w", err)
	}

	s.logger.Info().Int("cleared_keys", len(keys)).Msg("Cache flushed")
	return len(keys), nil
}
