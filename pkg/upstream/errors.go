package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies upstream call failures.
type ErrorKind string

const (
	// KindTimeout is a call that exceeded the bounded per-call timeout.
	KindTimeout ErrorKind = "timeout"

	// KindTransport is a network-level failure (DNS, connection refused).
	KindTransport ErrorKind = "transport"

	// KindNonJSON is a response whose content type is not JSON.
	KindNonJSON ErrorKind = "non_json"

	// KindMalformedJSON is a JSON-typed response that failed to parse.
	KindMalformedJSON ErrorKind = "malformed_json"

	// KindQuotaExceeded is the upstream quota-exhaustion signal.
	KindQuotaExceeded ErrorKind = "quota_exceeded"

	// KindUpstream is any other structured upstream error.
	KindUpstream ErrorKind = "upstream"
)

// Error is a normalized upstream call failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// Excerpt is a truncated raw-body sample for protocol errors.
	Excerpt string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Message)
}

// AsError unwraps err into *Error.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// excerptLimit bounds raw-body samples carried in protocol errors.
const excerptLimit = 200

func excerpt(body []byte) string {
	if len(body) <= excerptLimit {
		return string(body)
	}

	// Back off to a rune boundary so the excerpt stays valid UTF-8.
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

// Quota exhaustion reason codes in the upstream error envelope.
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

// errorSignal is the defensively parsed upstream error envelope:
//
//	{"error": {"code": 403, "message": "...", "errors": [{"reason": "quotaExceeded", ...}]}}
//
// All fields are optional on the wire; Present reports whether any part of
// the envelope was found at all.
type errorSignal struct {
	Present bool
	Code    int
	Message string
	Reasons []string
}

// QuotaExceeded reports whether any nested reason is a quota signal.
func (s errorSignal) QuotaExceeded() bool {
	for _, r := range s.Reasons {
		if quotaReasons[r] {
			return true
		}
	}
	return false
}

// parseObject parses a response body as a top-level JSON object.
func parseObject(body []byte) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// parseErrorSignal extracts the error envelope from a raw response body.
// Unparseable bodies yield an absent signal, never an error: callers already
// know the transport status indicates failure.
func parseErrorSignal(body []byte) errorSignal {
	var envelope struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Errors  []struct {
				Reason  string `json:"reason"`
				Message string `json:"message"`
				Domain  string `json:"domain"`
			} `json:"errors"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return errorSignal{}
	}

	signal := errorSignal{
		Present: true,
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
	for _, e := range envelope.Error.Errors {
		if e.Reason != "" {
			signal.Reasons = append(signal.Reasons, e.Reason)
		}
	}
	return signal
}
