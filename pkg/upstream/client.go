// Package upstream implements the outbound client for the YouTube Data API
// v3 with bounded timeouts, response classification, and quota-exhaustion
// detection.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croneborg/yt-search-proxy/pkg/quota"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytproxy_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytproxy_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytproxy_upstream_errors_total",
		Help: "Total upstream errors by kind",
	}, []string{"kind"})
)

// DefaultBaseURL is the production YouTube Data API v3 endpoint.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// DefaultTimeout bounds every upstream call.
const DefaultTimeout = 12 * time.Second

// Config holds the upstream client configuration.
type Config struct {
	// APIKey authenticates against the metered API (required).
	APIKey string

	// BaseURL overrides the API endpoint (tests point this at a mock).
	BaseURL string

	// Timeout bounds each outbound call.
	Timeout time.Duration
}

// Client performs outbound calls against the search API. It detects
// quota-exceeded signals and flips the quota tracker immediately. No
// retries: retry/fallback policy lives in the fulfillment pipeline.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	tracker    *quota.Tracker
	logger     zerolog.Logger
}

// New creates an upstream client.
func New(cfg Config, tracker *quota.Tracker) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("quota tracker is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		tracker:    tracker,
		logger:     log.With().Str("component", "upstream").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Search performs a video search.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (map[string]any, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	return c.call(ctx, "search", params)
}

// VideoDetails fetches detail parts for a single video id.
func (c *Client) VideoDetails(ctx context.Context, id string) (map[string]any, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", id)
	return c.call(ctx, "videos", params)
}

// ChannelDetails fetches detail parts for a single channel id.
func (c *Client) ChannelDetails(ctx context.Context, id string) (map[string]any, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", id)
	return c.call(ctx, "channels", params)
}

// Probe issues the cheapest canonical read against the upstream. Used by the
// quota tracker to detect recovery.
func (c *Client) Probe(ctx context.Context) error {
	params := url.Values{}
	params.Set("part", "id")
	params.Set("chart", "mostPopular")
	params.Set("maxResults", "1")
	_, err := c.call(ctx, "videos", params)
	return err
}

// call issues one outbound request and normalizes the result. At most one
// attempt per call.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	params.Set("key", c.apiKey)
	callURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.failTransport(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.failTransport(endpoint, err)
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		upstreamErrorsTotal.WithLabelValues(string(KindNonJSON)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "non_json").Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("content_type", resp.Header.Get("Content-Type")).
			Msg("Upstream returned non-JSON response")
		return nil, &Error{
			Kind:       KindNonJSON,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("upstream returned non-JSON content type %q", resp.Header.Get("Content-Type")),
			Excerpt:    excerpt(body),
		}
	}

	parsed, parseErr := parseObject(body)

	// An unparseable body is a protocol error regardless of status: an error
	// status with JSON that does not parse carries no usable error envelope.
	if parseErr != nil {
		upstreamErrorsTotal.WithLabelValues(string(KindMalformedJSON)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "malformed_json").Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Err(parseErr).
			Msg("Upstream returned malformed JSON")
		return nil, &Error{
			Kind:       KindMalformedJSON,
			StatusCode: resp.StatusCode,
			Message:    "upstream returned malformed JSON",
			Excerpt:    excerpt(body),
		}
	}

	if resp.StatusCode >= 400 {
		return nil, c.failStatus(endpoint, resp.StatusCode, body)
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Upstream request succeeded")

	return parsed, nil
}

// failTransport classifies request-level failures (no HTTP response).
func (c *Client) failTransport(endpoint string, err error) error {
	kind := KindTransport
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}

	upstreamErrorsTotal.WithLabelValues(string(kind)).Inc()
	upstreamRequestsTotal.WithLabelValues(endpoint, string(kind)).Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("kind", string(kind)).
		Err(err).
		Msg("Upstream request failed")

	return &Error{Kind: kind, Message: err.Error()}
}

// failStatus classifies HTTP error responses, inspecting the parsed error
// envelope for a quota signal.
func (c *Client) failStatus(endpoint string, statusCode int, body []byte) error {
	signal := parseErrorSignal(body)

	if signal.QuotaExceeded() {
		// Flip the tracker immediately; do not wait for the next probe.
		c.tracker.MarkExhausted()

		upstreamErrorsTotal.WithLabelValues(string(KindQuotaExceeded)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "quota_exceeded").Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", statusCode).
			Msg("Upstream quota exceeded")

		message := signal.Message
		if message == "" {
			message = "upstream quota exceeded"
		}
		return &Error{Kind: KindQuotaExceeded, StatusCode: statusCode, Message: message}
	}

	message := signal.Message
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", statusCode)
	}

	upstreamErrorsTotal.WithLabelValues(string(KindUpstream)).Inc()
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", statusCode).
		Str("message", message).
		Msg("Upstream request error")

	return &Error{Kind: KindUpstream, StatusCode: statusCode, Message: message}
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "text/json"
}
