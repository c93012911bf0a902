package upstream

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseErrorSignal(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPresent bool
		wantQuota   bool
		wantMessage string
	}{
		{
			name: "quota exceeded signal",
			body: `{"error": {"code": 403, "message": "quota spent", ` +
				`"errors": [{"reason": "quotaExceeded", "domain": "youtube.quota"}]}}`,
			wantPresent: true,
			wantQuota:   true,
			wantMessage: "quota spent",
		},
		{
			name: "daily limit signal",
			body: `{"error": {"code": 403, "errors": [{"reason": "dailyLimitExceeded"}]}}`,
			wantPresent: true,
			wantQuota:   true,
		},
		{
			name:        "backend error is not quota",
			body:        `{"error": {"code": 500, "message": "backend", "errors": [{"reason": "backendError"}]}}`,
			wantPresent: true,
			wantQuota:   false,
			wantMessage: "backend",
		},
		{
			name:        "error without nested list",
			body:        `{"error": {"code": 404, "message": "not found"}}`,
			wantPresent: true,
			wantQuota:   false,
			wantMessage: "not found",
		},
		{
			name:        "no error envelope",
			body:        `{"items": []}`,
			wantPresent: false,
		},
		{
			name:        "unparseable body",
			body:        `<html>oops</html>`,
			wantPresent: false,
		},
		{
			name:        "empty body",
			body:        ``,
			wantPresent: false,
		},
		{
			name:        "error is not an object",
			body:        `{"error": "boom"}`,
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := parseErrorSignal([]byte(tt.body))
			if signal.Present != tt.wantPresent {
				t.Errorf("Present = %v, want %v", signal.Present, tt.wantPresent)
			}
			if signal.QuotaExceeded() != tt.wantQuota {
				t.Errorf("QuotaExceeded() = %v, want %v", signal.QuotaExceeded(), tt.wantQuota)
			}
			if tt.wantMessage != "" && signal.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", signal.Message, tt.wantMessage)
			}
		})
	}
}

func TestExcerpt_Truncation(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}

	if got := excerpt(long); len(got) != excerptLimit {
		t.Errorf("excerpt length = %d, want %d", len(got), excerptLimit)
	}
	if got := excerpt([]byte("short")); got != "short" {
		t.Errorf("excerpt = %q, want %q", got, "short")
	}
}

func TestExcerpt_RuneBoundary(t *testing.T) {
	// A two-byte rune straddles the byte limit; the cut must back off to the
	// previous boundary instead of emitting an invalid-UTF-8 tail.
	body := []byte(strings.Repeat("x", excerptLimit-1) + "éé")

	got := excerpt(body)
	if !utf8.ValidString(got) {
		t.Errorf("excerpt is not valid UTF-8: %q", got)
	}
	if len(got) != excerptLimit-1 {
		t.Errorf("excerpt length = %d, want %d (trimmed to rune boundary)", len(got), excerptLimit-1)
	}
}

func TestError_Error(t *testing.T) {
	e := &Error{Kind: KindQuotaExceeded, StatusCode: 403, Message: "quota spent"}
	want := "upstream quota_exceeded error (status 403): quota spent"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	noStatus := &Error{Kind: KindTimeout, Message: "deadline exceeded"}
	want = "upstream timeout error: deadline exceeded"
	if noStatus.Error() != want {
		t.Errorf("Error() = %q, want %q", noStatus.Error(), want)
	}
}

func TestAsError(t *testing.T) {
	inner := &Error{Kind: KindTransport, Message: "refused"}
	wrapped := fmt.Errorf("call failed: %w", inner)

	got, ok := AsError(wrapped)
	if !ok || got.Kind != KindTransport {
		t.Errorf("AsError() = %v, %v; want inner error", got, ok)
	}

	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError() on plain error should report false")
	}
}
