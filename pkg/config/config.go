// Package config loads proxy configuration from the environment via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backend identifiers.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full runtime configuration of the proxy.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// APIKey authenticates every upstream call. Required.
	APIKey string

	// UpstreamBaseURL overrides the upstream API base (for testing).
	UpstreamBaseURL string

	// UpstreamTimeout bounds a single upstream HTTP attempt.
	UpstreamTimeout time.Duration

	// CacheTTL is the freshness lifetime of cached payloads.
	CacheTTL time.Duration

	// CacheSweepInterval is how often expired entries are swept.
	CacheSweepInterval time.Duration

	// CacheStaleRetention is how long expired entries remain available
	// for stale fallback before the sweep removes them.
	CacheStaleRetention time.Duration

	// CacheBackend selects the store implementation: "memory" or "redis".
	CacheBackend string

	// RedisAddr is the redis host:port (redis backend only).
	RedisAddr string

	// QuotaDebounce is the minimum gap between quota recovery probes
	// triggered by status requests.
	QuotaDebounce time.Duration

	// QuotaReprobeInterval drives the background recovery loop.
	QuotaReprobeInterval time.Duration

	// LogLevel is the minimum level: debug, info, warn, error.
	LogLevel string

	// LogPretty switches to human-readable console output.
	LogPretty bool

	// AllowedOrigins is the CORS origin allowlist; empty allows all.
	AllowedOrigins []string
}

// Load reads configuration from the environment, applying defaults for
// everything except the API key.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("UPSTREAM_BASE_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 12)
	v.SetDefault("CACHE_TTL_SECONDS", 3600)
	v.SetDefault("CACHE_SWEEP_SECONDS", 120)
	v.SetDefault("CACHE_STALE_RETENTION_SECONDS", 86400)
	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("QUOTA_DEBOUNCE_SECONDS", 300)
	v.SetDefault("QUOTA_REPROBE_SECONDS", 300)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("ALLOWED_ORIGINS", "")

	cfg := Config{
		Port:                 v.GetString("PORT"),
		APIKey:               v.GetString("YOUTUBE_API_KEY"),
		UpstreamBaseURL:      v.GetString("UPSTREAM_BASE_URL"),
		UpstreamTimeout:      time.Duration(v.GetInt("UPSTREAM_TIMEOUT_SECONDS")) * time.Second,
		CacheTTL:             time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		CacheSweepInterval:   time.Duration(v.GetInt("CACHE_SWEEP_SECONDS")) * time.Second,
		CacheStaleRetention:  time.Duration(v.GetInt("CACHE_STALE_RETENTION_SECONDS")) * time.Second,
		CacheBackend:         strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		QuotaDebounce:        time.Duration(v.GetInt("QUOTA_DEBOUNCE_SECONDS")) * time.Second,
		QuotaReprobeInterval: time.Duration(v.GetInt("QUOTA_REPROBE_SECONDS")) * time.Second,
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogPretty:            v.GetBool("LOG_PRETTY"),
		AllowedOrigins:       splitOrigins(v.GetString("ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and enum values.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("YOUTUBE_API_KEY is required")
	}
	if c.CacheBackend != BackendMemory && c.CacheBackend != BackendRedis {
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
