package gemini

import (
	"errors"
	"fmt"
)

// ValidationError means the caller supplied bad input. Repeating the same
// call cannot succeed, so it must never be retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FormatError means the backend answered but the response could not be
// parsed into the expected shape. A fresh generation may well produce a
// parseable answer, so format errors are retried.
type FormatError struct {
	Op     string
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Detail)
}

// TransientError covers backend unavailability, rate limits and every
// other failure of the outbound call itself.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports whether err may be retried. Everything except a
// ValidationError is; an unclassified error is treated as transient.
func Retryable(err error) bool {
	var ve *ValidationError
	return !errors.As(err, &ve)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func formatErr(op, detail string) error {
	return &FormatError{Op: op, Detail: detail}
}

func transientErr(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
