// Package errs defines the coded error taxonomy shared by the clinrec
// domain services. Handlers map kinds to HTTP statuses; services attach
// the identifiers (field path, import id) a caller needs to retry or
// escalate.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of recoverable domain failure.
type Kind string

const (
	KindInvalidFieldType Kind = "invalid_field_type"
	KindNotFound         Kind = "not_found"
	KindAlreadyPromoted  Kind = "already_promoted"
	KindUnknownFieldPath Kind = "unknown_field_path"
	KindAlreadyReviewed  Kind = "already_reviewed"
	KindExtraction       Kind = "extraction_error"
	KindWriteConflict    Kind = "write_conflict"
	KindInvalidArgument  Kind = "invalid_argument"
)

// Error is a domain error with a kind and optional subject context.
type Error struct {
	Kind    Kind
	Message string
	// Subject pins the error to the thing it is about: a field name,
	// a field path, or an import id.
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithSubject returns a copy of the error pinned to a subject identifier.
func (e *Error) WithSubject(subject string) *Error {
	clone := *e
	clone.Subject = subject
	return &clone
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of err if it is (or wraps) a domain error,
// and "" otherwise.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a domain error kind to an HTTP status code. Non-domain
// errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidFieldType, KindUnknownFieldPath, KindInvalidArgument:
		return http.StatusBadRequest
	case KindAlreadyPromoted, KindAlreadyReviewed, KindWriteConflict:
		return http.StatusConflict
	case KindExtraction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
