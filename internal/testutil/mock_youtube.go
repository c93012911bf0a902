// Package testutil provides testing utilities for the proxy, including a
// configurable mock of the upstream search API.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode  int
	Body        string
	ContentType string
	Delay       time.Duration
}

// MockYouTube is a configurable mock upstream API server for testing.
type MockYouTube struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	LastQuery    url.Values
}

// NewMockYouTube creates a new mock upstream server.
func NewMockYouTube() *MockYouTube {
	mock := &MockYouTube{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockYouTube) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockYouTube) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockYouTube) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockYouTube) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a specific path.
func (m *MockYouTube) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path. Paths follow the
// upstream API shape: "/search", "/videos", "/channels".
func (m *MockYouTube) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		contentType := resp.ContentType
		if contentType == "" {
			contentType = "application/json; charset=UTF-8"
		}
		w.Header().Set("Content-Type", contentType)

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// defaultHandler answers with an empty, well-formed list response.
func (m *MockYouTube) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"kind": "youtube#searchListResponse", "items": []}`))
}

// SearchListBody builds a well-formed search response with n items.
func SearchListBody(n int) string {
	items := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"id": {"videoId": "vid-%d"}, "snippet": {"title": "Video %d"}}`, i, i)
	}
	return fmt.Sprintf(`{"kind": "youtube#searchListResponse", "pageInfo": {"totalResults": %d}, "items": [%s]}`, n, items)
}

// VideoListBody builds a well-formed video detail response for one id.
func VideoListBody(id string) string {
	return fmt.Sprintf(`{"kind": "youtube#videoListResponse", "items": [{"id": %q, "snippet": {"title": "A video"}, "statistics": {"viewCount": "42"}}]}`, id)
}

// ChannelListBody builds a well-formed channel detail response for one id.
func ChannelListBody(id string) string {
	return fmt.Sprintf(`{"kind": "youtube#channelListResponse", "items": [{"id": %q, "snippet": {"title": "A channel"}, "statistics": {"subscriberCount": "7"}}]}`, id)
}

// EmptyListBody builds a well-formed response with no items.
func EmptyListBody(kind string) string {
	return fmt.Sprintf(`{"kind": %q, "items": []}`, kind)
}

// NewQuotaExceededResponse creates the upstream quota exhaustion error.
func NewQuotaExceededResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body: `{"error": {"code": 403, "message": "The request cannot be completed because you have exceeded your quota.", ` +
			`"errors": [{"message": "quota exceeded", "domain": "youtube.quota", "reason": "quotaExceeded"}]}}`,
	}
}

// NewUpstreamErrorResponse creates a structured non-quota upstream error.
func NewUpstreamErrorResponse(code int, message string) MockResponse {
	return MockResponse{
		StatusCode: code,
		Body: fmt.Sprintf(`{"error": {"code": %d, "message": %q, "errors": [{"message": %q, "reason": "backendError"}]}}`,
			code, message, message),
	}
}

// NewNonJSONResponse creates an HTML error page response.
func NewNonJSONResponse() MockResponse {
	return MockResponse{
		StatusCode:  http.StatusServiceUnavailable,
		Body:        "<html><body><h1>503 Service Unavailable</h1></body></html>",
		ContentType: "text/html; charset=UTF-8",
	}
}

// NewMalformedJSONResponse creates a JSON-typed response that does not parse.
func NewMalformedJSONResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"kind": "youtube#searchListResponse", "items": [`,
	}
}
