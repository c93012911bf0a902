package quota

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaExhausted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytproxy_quota_exhausted",
		Help: "1 while the upstream quota is believed exhausted, 0 otherwise",
	})

	quotaProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytproxy_quota_probes_total",
		Help: "Total quota recovery probes by result",
	}, []string{"result"}) // "recovered", "still_exhausted", "skipped"
)

// Prober issues a lightweight canonical request against the upstream.
// A nil error means the upstream answered successfully. The upstream client
// flips the tracker back to exhausted itself when the probe hits another
// quota signal, so the tracker only needs success/failure here.
type Prober interface {
	Probe(ctx context.Context) error
}

// Tracker owns the process-wide quota state. Injected into the pipeline and
// the upstream client rather than hidden in a package global so tests can
// construct pre-exhausted trackers.
type Tracker struct {
	mu            sync.Mutex
	exhausted     bool
	lastCheckedAt time.Time

	debounce time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewTracker creates a tracker in the OK state. debounce <= 0 falls back to
// DefaultDebounce.
func NewTracker(debounce time.Duration, logger zerolog.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		debounce: debounce,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the tracker's clock (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// MarkExhausted transitions to EXHAUSTED. Called by the upstream client the
// moment it observes a quota-exceeded signal; does not wait for a probe.
func (t *Tracker) MarkExhausted() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.exhausted {
		t.logger.Warn().Msg("Upstream quota exhausted - serving from cache only")
	}
	t.exhausted = true
	t.lastCheckedAt = t.now()
	quotaExhausted.Set(1)
}

// Exhausted reports whether the quota is currently believed spent.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exhausted
}

// Snapshot returns the current state without probing.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{Exhausted: t.exhausted, LastCheckedAt: t.lastCheckedAt}
}

// CheckStatus returns the current state, probing for recovery when the state
// is EXHAUSTED and the debounce window has elapsed. Probes within the window
// are skipped without a network call. A probe that fails for reasons other
// than quota (timeout, DNS) preserves the prior state: absence of signal is
// not evidence of health.
func (t *Tracker) CheckStatus(ctx context.Context, prober Prober) Snapshot {
	t.mu.Lock()
	if !t.exhausted {
		snap := Snapshot{Exhausted: false, LastCheckedAt: t.lastCheckedAt}
		t.mu.Unlock()
		return snap
	}

	if !ShouldProbe(t.now(), t.lastCheckedAt, t.debounce) {
		snap := Snapshot{Exhausted: t.exhausted, LastCheckedAt: t.lastCheckedAt}
		t.mu.Unlock()
		quotaProbesTotal.WithLabelValues("skipped").Inc()
		t.logger.Debug().Time("last_checked_at", snap.LastCheckedAt).Msg("Quota probe skipped within debounce window")
		return snap
	}

	t.lastCheckedAt = t.now()
	t.mu.Unlock()

	err := prober.Probe(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.exhausted = false
		quotaExhausted.Set(0)
		quotaProbesTotal.WithLabelValues("recovered").Inc()
		t.logger.Info().Msg("Quota probe succeeded - upstream calls resumed")
	} else {
		// A quota signal during the probe re-marks the tracker via the
		// upstream client; anything else leaves the flag untouched.
		quotaProbesTotal.WithLabelValues("still_exhausted").Inc()
		t.logger.Warn().Err(err).Msg("Quota probe failed - state preserved")
	}

	return Snapshot{Exhausted: t.exhausted, LastCheckedAt: t.lastCheckedAt}
}

// Run re-probes periodically while exhausted, until ctx is cancelled.
// Independent of request handling.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, prober Prober) {
	if interval <= 0 {
		interval = DefaultDebounce
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.Exhausted() {
				t.CheckStatus(ctx, prober)
			}
		}
	}
}
