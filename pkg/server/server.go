// Package server exposes the proxy's HTTP API on gin: lookup endpoints
// backed by the fulfillment pipeline, quota status, cache administration,
// health, and Prometheus metrics.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/croneborg/yt-search-proxy/pkg/cache"
	"github.com/croneborg/yt-search-proxy/pkg/pipeline"
	"github.com/croneborg/yt-search-proxy/pkg/quota"
)

// Server wires the HTTP boundary to the fulfillment pipeline and the quota
// tracker.
type Server struct {
	pipeline *pipeline.Pipeline
	store    cache.Store
	tracker  *quota.Tracker
	prober   quota.Prober
	logger   zerolog.Logger
}

// New creates a Server. prober is the upstream client used for on-demand
// quota recovery checks.
func New(p *pipeline.Pipeline, store cache.Store, tracker *quota.Tracker, prober quota.Prober, logger zerolog.Logger) *Server {
	return &Server{
		pipeline: p,
		store:    store,
		tracker:  tracker,
		prober:   prober,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes and middleware attached.
// allowedOrigins empty means all origins are accepted.
func (s *Server) Router(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(s.accessLog())
	router.Use(s.recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/search", s.handleSearch)
		api.GET("/video/:id", s.handleVideo)
		api.GET("/channel/:id", s.handleChannel)
		api.GET("/quota-status", s.handleQuotaStatus)
		api.DELETE("/cache", s.handleCacheFlush)
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}
