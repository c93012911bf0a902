// Package pipeline implements the cache-backed request fulfillment core:
// the decision procedure that serves a lookup from cache, calls upstream,
// stores the result, or degrades to stale data under quota exhaustion.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croneborg/yt-search-proxy/pkg/cache"
	"github.com/croneborg/yt-search-proxy/pkg/lookup"
	"github.com/croneborg/yt-search-proxy/pkg/quota"
	"github.com/croneborg/yt-search-proxy/pkg/upstream"
)

// Prometheus metrics for fulfillment outcomes.
var (
	fulfillmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytproxy_fulfillments_total",
		Help: "Total fulfillment outcomes by lookup kind and result",
	}, []string{"kind", "result"}) // result: cache_hit, upstream, stale_fallback, quota_blocked, error

	fulfillmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytproxy_fulfillment_duration_seconds",
		Help:    "Fulfillment duration in seconds by lookup kind",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15},
	}, []string{"kind"})
)

// Upstream is the outbound API surface the pipeline depends on.
type Upstream interface {
	Search(ctx context.Context, query string, maxResults int) (map[string]any, error)
	VideoDetails(ctx context.Context, id string) (map[string]any, error)
	ChannelDetails(ctx context.Context, id string) (map[string]any, error)
}

// Pipeline resolves lookup requests against the cache store, the quota
// tracker, and the upstream client. Each inbound request makes at most one
// upstream attempt; stale-cache fallback is attempted on every upstream
// failure kind.
type Pipeline struct {
	store    cache.Store
	upstream Upstream
	tracker  *quota.Tracker
	ttl      time.Duration
	logger   zerolog.Logger
}

// New creates a fulfillment pipeline. ttl is the cache lifetime for
// successful upstream payloads.
func New(store cache.Store, up Upstream, tracker *quota.Tracker, ttl time.Duration) *Pipeline {
	return &Pipeline{
		store:    store,
		upstream: up,
		tracker:  tracker,
		ttl:      ttl,
		logger:   log.With().Str("component", "pipeline").Logger(),
	}
}

// Fulfill resolves a lookup request to an outcome. Errors are always
// converted to outcomes, never propagated.
func (p *Pipeline) Fulfill(ctx context.Context, req lookup.Request) Outcome {
	startTime := time.Now()
	defer func() {
		fulfillmentDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: validation failures never touch cache or upstream.
	if err := req.Validate(); err != nil {
		fulfillmentsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		return errorOutcome(http.StatusBadRequest, err.Error())
	}

	key := req.CacheKey()

	// Step 2: cache hits are authoritative once fresh, bypassing quota and
	// upstream entirely.
	if entry, err := p.store.Get(ctx, key); err == nil {
		if outcome, ok := p.serveEntry(entry, key); ok {
			fulfillmentsTotal.WithLabelValues(string(req.Kind), "cache_hit").Inc()
			return outcome
		}
	}

	// Step 3: known-exhausted quota blocks new upstream calls outright.
	if p.tracker.Exhausted() {
		fulfillmentsTotal.WithLabelValues(string(req.Kind), "quota_blocked").Inc()
		return p.quotaBlocked(ctx, key)
	}

	// Step 4: single upstream attempt.
	body, err := p.callUpstream(ctx, req)
	if err != nil {
		return p.handleUpstreamFailure(ctx, req, key, err)
	}

	fulfillmentsTotal.WithLabelValues(string(req.Kind), "upstream").Inc()
	return p.handleUpstreamSuccess(ctx, req, key, body)
}

// serveEntry turns a live cache entry into an outcome. Returns false when
// the stored payload is unreadable, which is treated as a miss.
func (p *Pipeline) serveEntry(entry *cache.Entry, key string) (Outcome, bool) {
	payload, err := decodePayload(entry)
	if err != nil {
		p.logger.Warn().Err(err).Str("cache_key", key).Msg("Unreadable cache entry, treating as miss")
		return Outcome{}, false
	}

	outcome := Outcome{
		Status:     StatusFresh,
		StatusCode: http.StatusOK,
		Payload:    payload,
	}.annotate(AnnotationFromCache, true)

	if entry.QuotaExhausted {
		outcome.Status = StatusStale
		outcome = outcome.annotate(AnnotationQuotaExceeded, true)
	}

	p.logger.Debug().Str("cache_key", key).Str("status", string(outcome.Status)).Msg("Cache hit")
	return outcome, true
}

// quotaBlocked builds the 429 outcome for uncached keys while exhausted,
// with a coarse hint about whether any cache entries exist at all.
func (p *Pipeline) quotaBlocked(ctx context.Context, key string) Outcome {
	cacheAvailable := false
	if n, err := p.store.Len(ctx); err == nil {
		cacheAvailable = n > 0
	}

	p.logger.Debug().Str("cache_key", key).Msg("Quota exhausted, upstream call skipped")

	outcome := errorOutcome(http.StatusTooManyRequests, "upstream quota exhausted")
	outcome.QuotaExceeded = true
	outcome.Details = map[string]any{"cacheAvailable": cacheAvailable}
	return outcome
}

func (p *Pipeline) callUpstream(ctx context.Context, req lookup.Request) (map[string]any, error) {
	switch req.Kind {
	case lookup.KindSearch:
		return p.upstream.Search(ctx, req.Query, req.MaxResults)
	case lookup.KindVideo:
		return p.upstream.VideoDetails(ctx, req.ID)
	case lookup.KindChannel:
		return p.upstream.ChannelDetails(ctx, req.ID)
	default:
		return nil, fmt.Errorf("unsupported lookup kind %q", req.Kind)
	}
}

// handleUpstreamSuccess shape-checks the payload, writes through to the
// cache, and returns a fresh outcome.
func (p *Pipeline) handleUpstreamSuccess(ctx context.Context, req lookup.Request, key string, body map[string]any) Outcome {
	items, ok := body["items"].([]any)
	if !ok {
		p.logger.Warn().Str("cache_key", key).Msg("Upstream response missing items list")
		return errorOutcome(http.StatusBadGateway, "upstream returned a structurally invalid response")
	}

	if req.Kind != lookup.KindSearch && len(items) == 0 {
		return errorOutcome(http.StatusNotFound, fmt.Sprintf("%s not found", string(req.Kind)))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		// Should not happen for a decoded JSON object; serve without caching.
		p.logger.Error().Err(err).Str("cache_key", key).Msg("Failed to encode payload for cache")
	} else {
		entry := cache.NewEntry(payload, p.ttl)
		entry.QuotaExhausted = p.tracker.Exhausted()
		if err := p.store.Set(ctx, key, entry); err != nil {
			p.logger.Warn().Err(err).Str("cache_key", key).Msg("Failed to cache payload")
		} else {
			p.logger.Debug().Str("cache_key", key).Dur("ttl", p.ttl).Msg("Cached upstream payload")
		}
	}

	return Outcome{
		Status:     StatusFresh,
		StatusCode: http.StatusOK,
		Payload:    body,
	}
}

// handleUpstreamFailure applies the stale-fallback policy: availability is
// prioritized over freshness once upstream is unreachable for any reason.
func (p *Pipeline) handleUpstreamFailure(ctx context.Context, req lookup.Request, key string, err error) Outcome {
	ue, ok := upstream.AsError(err)
	if !ok {
		p.logger.Error().Err(err).Str("cache_key", key).Msg("Unexpected fulfillment error")
		fulfillmentsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		return errorOutcome(http.StatusInternalServerError, "internal error")
	}

	quotaHit := ue.Kind == upstream.KindQuotaExceeded

	if entry, staleErr := p.store.GetStale(ctx, key); staleErr == nil {
		if payload, decodeErr := decodePayload(entry); decodeErr == nil {
			fulfillmentsTotal.WithLabelValues(string(req.Kind), "stale_fallback").Inc()
			p.logger.Info().
				Str("cache_key", key).
				Str("error_kind", string(ue.Kind)).
				Msg("Serving stale cache entry after upstream failure")

			outcome := Outcome{
				Status:     StatusStale,
				StatusCode: http.StatusOK,
				Payload:    payload,
			}.annotate(AnnotationFromCache, true)

			if quotaHit {
				return outcome.annotate(AnnotationQuotaExceeded, true)
			}
			return outcome.annotate(AnnotationAPIError, ue.Message)
		}
	}

	fulfillmentsTotal.WithLabelValues(string(req.Kind), "error").Inc()

	if quotaHit {
		outcome := errorOutcome(http.StatusTooManyRequests, ue.Message)
		outcome.QuotaExceeded = true
		return outcome
	}

	outcome := errorOutcome(errorStatusFor(ue), ue.Message)
	if ue.Excerpt != "" {
		outcome.Details = map[string]any{"excerpt": ue.Excerpt}
	}
	return outcome
}

// errorStatusFor maps upstream failure kinds to proxy status codes.
func errorStatusFor(ue *upstream.Error) int {
	switch ue.Kind {
	case upstream.KindTimeout:
		return http.StatusRequestTimeout
	case upstream.KindTransport, upstream.KindNonJSON, upstream.KindMalformedJSON:
		return http.StatusBadGateway
	case upstream.KindUpstream:
		// Surface the upstream's own status when it is a valid error code.
		if ue.StatusCode >= 400 && ue.StatusCode < 600 {
			return ue.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodePayload(entry *cache.Entry) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode cache payload: %w", err)
	}
	return payload, nil
}
