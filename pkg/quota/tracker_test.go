package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeProber counts probe calls and returns a configured error.
type fakeProber struct {
	calls int
	err   error
}

func (p *fakeProber) Probe(_ context.Context) error {
	p.calls++
	return p.err
}

// fakeClock is an adjustable clock for debounce tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(debounce time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(debounce, zerolog.Nop())
	tracker.SetClock(clock.Now)
	return tracker, clock
}

func TestTracker_InitialState(t *testing.T) {
	tracker, _ := newTestTracker(300 * time.Second)

	if tracker.Exhausted() {
		t.Error("new tracker should start in OK state")
	}

	snap := tracker.Snapshot()
	if snap.Exhausted || !snap.LastCheckedAt.IsZero() {
		t.Errorf("Snapshot() = %+v, want zero value", snap)
	}
}

func TestTracker_MarkExhausted(t *testing.T) {
	tracker, clock := newTestTracker(300 * time.Second)

	tracker.MarkExhausted()

	if !tracker.Exhausted() {
		t.Error("tracker should be exhausted after MarkExhausted")
	}
	if got := tracker.Snapshot().LastCheckedAt; !got.Equal(clock.Now()) {
		t.Errorf("LastCheckedAt = %v, want %v", got, clock.Now())
	}
}

func TestTracker_CheckStatus_OKStateSkipsProbe(t *testing.T) {
	tracker, _ := newTestTracker(300 * time.Second)
	prober := &fakeProber{}

	snap := tracker.CheckStatus(context.Background(), prober)

	if snap.Exhausted {
		t.Error("CheckStatus on OK tracker should report OK")
	}
	if prober.calls != 0 {
		t.Errorf("probe calls = %d, want 0 in OK state", prober.calls)
	}
}

func TestTracker_CheckStatus_DebounceSkipsNetworkCall(t *testing.T) {
	tracker, clock := newTestTracker(300 * time.Second)
	prober := &fakeProber{}

	tracker.MarkExhausted()
	clock.Advance(100 * time.Second) // within the debounce window

	snap := tracker.CheckStatus(context.Background(), prober)

	if !snap.Exhausted {
		t.Error("state should be unchanged within debounce window")
	}
	if prober.calls != 0 {
		t.Errorf("probe calls = %d, want 0 within debounce window", prober.calls)
	}
}

func TestTracker_CheckStatus_ProbeRecovers(t *testing.T) {
	tracker, clock := newTestTracker(300 * time.Second)
	prober := &fakeProber{}

	tracker.MarkExhausted()
	clock.Advance(301 * time.Second)

	snap := tracker.CheckStatus(context.Background(), prober)

	if snap.Exhausted {
		t.Error("successful probe should flip state back to OK")
	}
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1", prober.calls)
	}
	if !snap.LastCheckedAt.Equal(clock.Now()) {
		t.Errorf("LastCheckedAt = %v, want %v", snap.LastCheckedAt, clock.Now())
	}
}

func TestTracker_CheckStatus_ProbeFailurePreservesState(t *testing.T) {
	tracker, clock := newTestTracker(300 * time.Second)
	prober := &fakeProber{err: errors.New("dial tcp: i/o timeout")}

	tracker.MarkExhausted()
	clock.Advance(301 * time.Second)

	snap := tracker.CheckStatus(context.Background(), prober)

	if !snap.Exhausted {
		t.Error("failed probe must not flip state to OK")
	}
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1", prober.calls)
	}

	// The failed probe still consumed the debounce window.
	clock.Advance(100 * time.Second)
	tracker.CheckStatus(context.Background(), prober)
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1 (second check inside new window)", prober.calls)
	}
}

func TestTracker_CheckStatus_RepeatedCycles(t *testing.T) {
	tracker, clock := newTestTracker(300 * time.Second)
	prober := &fakeProber{err: errors.New("upstream down")}

	tracker.MarkExhausted()

	// Three failed probe windows, then recovery.
	for i := 0; i < 3; i++ {
		clock.Advance(301 * time.Second)
		if snap := tracker.CheckStatus(context.Background(), prober); !snap.Exhausted {
			t.Fatalf("cycle %d: state flipped to OK on failed probe", i)
		}
	}
	if prober.calls != 3 {
		t.Fatalf("probe calls = %d, want 3", prober.calls)
	}

	prober.err = nil
	clock.Advance(301 * time.Second)
	if snap := tracker.CheckStatus(context.Background(), prober); snap.Exhausted {
		t.Error("state should recover once the probe succeeds")
	}
}
