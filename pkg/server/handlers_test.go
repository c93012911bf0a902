package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croneborg/yt-search-proxy/pkg/cache"
	"github.com/croneborg/yt-search-proxy/pkg/pipeline"
	"github.com/croneborg/yt-search-proxy/pkg/quota"
)

type fakeUpstream struct {
	body  map[string]any
	err   error
	calls int
}

func (f *fakeUpstream) Search(context.Context, string, int) (map[string]any, error) {
	f.calls++
	return f.body, f.err
}

func (f *fakeUpstream) VideoDetails(context.Context, string) (map[string]any, error) {
	f.calls++
	return f.body, f.err
}

func (f *fakeUpstream) ChannelDetails(context.Context, string) (map[string]any, error) {
	f.calls++
	return f.body, f.err
}

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Probe(context.Context) error {
	f.calls++
	return f.err
}

type testHarness struct {
	router  *gin.Engine
	up      *fakeUpstream
	prober  *fakeProber
	store   *cache.MemoryStore
	tracker *quota.Tracker
}

func newHarness(up *fakeUpstream) *testHarness {
	store := cache.NewMemoryStore(24*time.Hour, zerolog.Nop())
	tracker := quota.NewTracker(300*time.Second, zerolog.Nop())
	p := pipeline.New(store, up, tracker, time.Hour)
	prober := &fakeProber{}

	srv := New(p, store, tracker, prober, zerolog.Nop())
	return &testHarness{
		router:  srv.Router(nil),
		up:      up,
		prober:  prober,
		store:   store,
		tracker: tracker,
	}
}

func (h *testHarness) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.router.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "response body should be JSON")
	return rec, body
}

func searchBody(n int) map[string]any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{"id": map[string]any{"videoId": "vid"}}
	}
	return map[string]any{"kind": "youtube#searchListResponse", "items": items}
}

func TestSearch_Success(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(2)})

	rec, body := h.do(t, http.MethodGet, "/api/search?q=cats&maxResults=5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 2)
	assert.NotContains(t, body, "_fromCache")
}

func TestSearch_SecondRequestServedFromCache(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(1)})

	h.do(t, http.MethodGet, "/api/search?q=cats&maxResults=5")
	rec, body := h.do(t, http.MethodGet, "/api/search?q=CATS&maxResults=5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["_fromCache"])
	assert.Equal(t, 1, h.up.calls, "second request must not reach upstream")
}

func TestSearch_MissingQuery(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(1)})

	rec, body := h.do(t, http.MethodGet, "/api/search")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "q")
	assert.Zero(t, h.up.calls)
}

func TestSearch_NonIntegerMaxResults(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(1)})

	rec, body := h.do(t, http.MethodGet, "/api/search?q=cats&maxResults=lots")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "maxResults")
}

func TestSearch_QuotaExhausted(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(1)})
	h.tracker.MarkExhausted()

	rec, body := h.do(t, http.MethodGet, "/api/search?q=cats")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, true, body["quotaExceeded"])
	assert.Equal(t, float64(http.StatusTooManyRequests), body["code"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok, "429 envelope should nest details")
	assert.Equal(t, false, details["cacheAvailable"])
	assert.Zero(t, h.up.calls)
}

func TestVideo_NotFound(t *testing.T) {
	h := newHarness(&fakeUpstream{body: map[string]any{"items": []any{}}})

	rec, body := h.do(t, http.MethodGet, "/api/video/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "video not found", body["error"])
}

func TestChannel_Success(t *testing.T) {
	h := newHarness(&fakeUpstream{body: map[string]any{
		"kind":  "youtube#channelListResponse",
		"items": []any{map[string]any{"id": "UCabc"}},
	}})

	rec, body := h.do(t, http.MethodGet, "/api/channel/UCabc")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 1)
}

func TestQuotaStatus_Healthy(t *testing.T) {
	h := newHarness(&fakeUpstream{})

	rec, body := h.do(t, http.MethodGet, "/api/quota-status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["quotaExceeded"])
	assert.Nil(t, body["lastCheckedAt"])
	assert.Zero(t, h.prober.calls, "healthy state must not probe")
}

func TestQuotaStatus_ProbeRecovers(t *testing.T) {
	h := newHarness(&fakeUpstream{})
	h.tracker.MarkExhausted()
	// Move the clock past the debounce window so the probe fires.
	h.tracker.SetClock(func() time.Time { return time.Now().Add(10 * time.Minute) })

	rec, body := h.do(t, http.MethodGet, "/api/quota-status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["quotaExceeded"])
	assert.Equal(t, 1, h.prober.calls)
	assert.NotNil(t, body["lastCheckedAt"])
}

func TestQuotaStatus_DebouncedProbe(t *testing.T) {
	h := newHarness(&fakeUpstream{})
	h.tracker.MarkExhausted()

	rec, body := h.do(t, http.MethodGet, "/api/quota-status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["quotaExceeded"])
	assert.Zero(t, h.prober.calls, "probe inside the debounce window must be skipped")
}

func TestCacheFlush(t *testing.T) {
	h := newHarness(&fakeUpstream{body: searchBody(1)})
	h.do(t, http.MethodGet, "/api/search?q=cats")
	h.do(t, http.MethodGet, "/api/search?q=dogs")

	rec, body := h.do(t, http.MethodDelete, "/api/cache")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["clearedKeys"])

	n, err := h.store.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHealth(t *testing.T) {
	h := newHarness(&fakeUpstream{})

	rec, body := h.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["quotaExceeded"])
	assert.Equal(t, true, body["cacheReachable"])
}

// failingStore wraps a Store whose Len always errors, like a Redis backend
// with a dropped connection.
type failingStore struct {
	cache.Store
}

func (failingStore) Len(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestHealth_CacheUnreachableStillLive(t *testing.T) {
	store := failingStore{Store: cache.NewMemoryStore(time.Hour, zerolog.Nop())}
	tracker := quota.NewTracker(300*time.Second, zerolog.Nop())
	p := pipeline.New(store, &fakeUpstream{}, tracker, time.Hour)
	srv := New(p, store, tracker, &fakeProber{}, zerolog.Nop())
	router := srv.Router(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "liveness must not depend on the cache backend")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["cacheReachable"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(&fakeUpstream{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ytproxy_"), "metrics output should include proxy metrics")
}
