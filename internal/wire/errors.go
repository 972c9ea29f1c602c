package wire

import "errors"

// ErrMalformed is wrapped by every wire-family validator when a body fails
// schema validation (spec.md §4.1, §7 ValidationError).
var ErrMalformed = errors.New("malformed message")

// FieldError names one offending field path and what is wrong with it
// (spec.md §7: "400 with a structured body listing offending paths").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by the Validate* functions below instead of a
// bare wrapped ErrMalformed, carrying enough structure for the HTTP layer to
// render an RFC-7807-flavored problem body instead of a flat error string.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is(err, ErrMalformed) keep working for callers that
// only care about the error class, not the field detail.
func (e *ValidationError) Unwrap() error {
	return ErrMalformed
}
