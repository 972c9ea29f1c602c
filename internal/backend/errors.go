package backend

import (
	"errors"
	"strconv"
)

// Sentinel errors for the adapter error taxonomy (spec.md §7). Adapter
// methods classify failures into these categories; the proxy (C7) is the
// single place that translates them to HTTP status codes.
var (
	// ErrUnavailable indicates the backend's health probe failed or the
	// connection was refused. Maps to HTTP 503.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrModelNotFound indicates the requested model is absent from the
	// backend's inventory.
	ErrModelNotFound = errors.New("model not found")

	// ErrStartupFailure indicates the supervisor could not spawn the
	// backend or it did not become ready within the readiness window.
	ErrStartupFailure = errors.New("startup failure")

	// ErrValidation indicates a request payload failed schema validation.
	ErrValidation = errors.New("validation error")
)

// UpstreamError wraps a pass-through HTTP status and body from the
// backend. Status 5xx is retryable at the HTTP client layer (C2); 4xx
// never is.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return "upstream error: status " + strconv.Itoa(e.Status)
}

// Retryable reports whether this upstream error is eligible for retry at
// C2 — true only for 5xx responses.
func (e *UpstreamError) Retryable() bool {
	return e.Status >= 500 && e.Status < 600
}
