package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis) and freshness.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytproxy_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer", "freshness"}, // freshness: "live", "stale"
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytproxy_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEntries tracks the number of physically present entries by layer.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ytproxy_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytproxy_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "keys", "flush"
	)

	// CacheSweepRemoved tracks entries removed by the periodic sweep.
	CacheSweepRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytproxy_cache_sweep_removed_total",
			Help: "Total number of expired entries removed by the sweeper",
		},
	)
)
