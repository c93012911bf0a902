package pipeline

// Status describes how an outcome was produced.
type Status string

const (
	// StatusFresh is a payload straight from upstream or a live cache hit.
	StatusFresh Status = "fresh"

	// StatusStale is a cache payload served past its freshness guarantee
	// or written under quota exhaustion.
	StatusStale Status = "stale"

	// StatusError is a terminal failure with no payload.
	StatusError Status = "error"
)

// Annotation keys merged additively into success payloads. They never
// overwrite upstream fields.
const (
	AnnotationFromCache     = "_fromCache"
	AnnotationQuotaExceeded = "_quotaExceeded"
	AnnotationAPIError      = "_apiError"
)

// Outcome is the pipeline's answer to a lookup request. Constructed
// per-request, never persisted.
type Outcome struct {
	Status     Status
	StatusCode int

	// Payload is the JSON-shaped response body on success paths.
	Payload map[string]any

	// Annotations are additive observability flags for success payloads.
	Annotations map[string]any

	// ErrorMessage and Details populate the error envelope.
	ErrorMessage string
	Details      any

	// QuotaExceeded marks quota-related error outcomes.
	QuotaExceeded bool
}

func (o Outcome) annotate(key string, value any) Outcome {
	if o.Annotations == nil {
		o.Annotations = make(map[string]any)
	}
	o.Annotations[key] = value
	return o
}

func errorOutcome(statusCode int, message string) Outcome {
	return Outcome{
		Status:       StatusError,
		StatusCode:   statusCode,
		ErrorMessage: message,
	}
}
