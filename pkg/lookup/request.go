// Package lookup defines the normalized request shape handed from the HTTP
// boundary to the fulfillment pipeline, along with validation and
// deterministic cache key derivation.
package lookup

import (
	"fmt"
	"strings"
)

// Kind discriminates the supported lookup variants.
type Kind string

const (
	// KindSearch is a free-text video search.
	KindSearch Kind = "search"

	// KindVideo is a single-video detail lookup by id.
	KindVideo Kind = "video"

	// KindChannel is a single-channel detail lookup by id.
	KindChannel Kind = "channel"
)

// Result count bounds for search lookups.
const (
	DefaultMaxResults = 10
	MaxResultsCeiling = 50
)

// Request is a normalized lookup request.
type Request struct {
	Kind Kind

	// Query is the search text (search kind only).
	Query string

	// MaxResults bounds the search result count (search kind only).
	MaxResults int

	// ID is the video or channel id (detail kinds only).
	ID string
}

// ValidationError reports an invalid request shape. It never reaches the
// upstream API.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewSearchRequest builds a normalized search request.
func NewSearchRequest(query string, maxResults int) Request {
	r := Request{Kind: KindSearch, Query: query, MaxResults: maxResults}
	r.Normalize()
	return r
}

// NewVideoRequest builds a video detail request.
func NewVideoRequest(id string) Request {
	return Request{Kind: KindVideo, ID: strings.TrimSpace(id)}
}

// NewChannelRequest builds a channel detail request.
func NewChannelRequest(id string) Request {
	return Request{Kind: KindChannel, ID: strings.TrimSpace(id)}
}

// Normalize applies the default result count and clamps it to the ceiling.
func (r *Request) Normalize() {
	if r.Kind != KindSearch {
		return
	}
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultMaxResults
	}
	if r.MaxResults > MaxResultsCeiling {
		r.MaxResults = MaxResultsCeiling
	}
}

// Validate checks the request shape. Returns a *ValidationError describing
// the first problem found.
func (r Request) Validate() error {
	switch r.Kind {
	case KindSearch:
		if strings.TrimSpace(r.Query) == "" {
			return &ValidationError{Field: "q", Message: "query must not be empty"}
		}
		if r.MaxResults < 1 || r.MaxResults > MaxResultsCeiling {
			return &ValidationError{
				Field:   "maxResults",
				Message: fmt.Sprintf("must be between 1 and %d", MaxResultsCeiling),
			}
		}
	case KindVideo:
		if strings.TrimSpace(r.ID) == "" {
			return &ValidationError{Field: "id", Message: "video id must not be empty"}
		}
	case KindChannel:
		if strings.TrimSpace(r.ID) == "" {
			return &ValidationError{Field: "id", Message: "channel id must not be empty"}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown lookup kind %q", string(r.Kind))}
	}
	return nil
}

// CacheKey derives the deterministic cache key for the request.
// Semantically equal search requests (case/whitespace-insensitive) yield the
// same key.
//
// Formats:
//
//	search_<normalized query>_<n>
//	video_<id>
//	channel_<id>
func (r Request) CacheKey() string {
	switch r.Kind {
	case KindSearch:
		return fmt.Sprintf("search_%s_%d", NormalizeQuery(r.Query), r.MaxResults)
	case KindVideo:
		return fmt.Sprintf("video_%s", strings.TrimSpace(r.ID))
	case KindChannel:
		return fmt.Sprintf("channel_%s", strings.TrimSpace(r.ID))
	default:
		return ""
	}
}

// NormalizeQuery lower-cases the query and collapses all runs of whitespace
// to a single space.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
