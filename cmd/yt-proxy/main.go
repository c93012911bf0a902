// Command yt-proxy runs the caching YouTube Data API proxy.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/croneborg/yt-search-proxy/pkg/cache"
	"github.com/croneborg/yt-search-proxy/pkg/config"
	"github.com/croneborg/yt-search-proxy/pkg/logging"
	"github.com/croneborg/yt-search-proxy/pkg/pipeline"
	"github.com/croneborg/yt-search-proxy/pkg/quota"
	"github.com/croneborg/yt-search-proxy/pkg/server"
	"github.com/croneborg/yt-search-proxy/pkg/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fallback := logging.NewLogger("main")
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.FromEnv(cfg.LogLevel, cfg.LogPretty))
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize cache store")
	}

	tracker := quota.NewTracker(cfg.QuotaDebounce, logging.NewLogger("quota"))

	client, err := upstream.New(upstream.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.UpstreamBaseURL,
		Timeout: cfg.UpstreamTimeout,
	}, tracker)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create upstream client")
	}

	p := pipeline.New(store, client, tracker, cfg.CacheTTL)
	srv := server.New(p, store, tracker, client, logging.NewLogger("http"))

	// Background recovery probes while exhausted.
	go tracker.Run(ctx, cfg.QuotaReprobeInterval, client)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("backend", cfg.CacheBackend).
			Dur("cache_ttl", cfg.CacheTTL).
			Msg("Proxy listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
		os.Exit(1)
	}
}

// buildStore selects the cache backend. The memory backend also starts its
// periodic sweep; redis relies on key TTLs instead.
func buildStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("Connected to Redis")
		return cache.NewRedisStore(client, cfg.CacheStaleRetention, logging.NewLogger("cache")), nil
	default:
		store := cache.NewMemoryStore(cfg.CacheStaleRetention, logging.NewLogger("cache"))
		store.StartSweeping(ctx, cfg.CacheSweepInterval)
		return store, nil
	}
}
