package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "future expiry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "past expiry",
			expires: time.Now().Add(-1 * time.Minute),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Expires: tt.expires}
			if got := e.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	e := NewEntry(json.RawMessage(`{"items":[]}`), 1*time.Hour)

	ttl := e.TTL()
	if ttl <= 59*time.Minute || ttl > 1*time.Hour {
		t.Errorf("TTL() = %v, want approximately 1h", ttl)
	}

	expired := &Entry{Expires: time.Now().Add(-1 * time.Minute)}
	if got := expired.TTL(); got != 0 {
		t.Errorf("TTL() on expired entry = %v, want 0", got)
	}
}

func TestNewEntry(t *testing.T) {
	payload := json.RawMessage(`{"items":[{"id":"abc"}]}`)
	e := NewEntry(payload, 30*time.Minute)

	if string(e.Payload) != string(payload) {
		t.Errorf("Payload = %s, want %s", e.Payload, payload)
	}
	if e.IsExpired() {
		t.Error("fresh entry should not be expired")
	}
	if e.QuotaExhausted {
		t.Error("new entry should not be quota tainted")
	}
	if e.CachedAt.IsZero() {
		t.Error("CachedAt should be set")
	}
}
