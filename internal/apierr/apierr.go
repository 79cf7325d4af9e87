// Package apierr defines the closed error taxonomy shared by every public
// operation in the platform. Handlers map a Kind to a transport status code;
// callers never see bare Go errors cross a package boundary.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy from the platform's failure model.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindProjectNotFound     Kind = "ProjectNotFound"
	KindProjectMisconfigured Kind = "ProjectMisconfigured"
	KindRateLimited         Kind = "RateLimited"
	KindBackendUnavailable  Kind = "BackendUnavailable"
	KindUpstreamTransient   Kind = "UpstreamTransient"
	KindResourceExhausted   Kind = "ResourceExhausted"
	KindConflict            Kind = "Conflict"
	KindInternal            Kind = "Internal"
)

var statusByKind = map[Kind]int{
	KindValidation:           http.StatusBadRequest,
	KindProjectNotFound:      http.StatusNotFound,
	KindProjectMisconfigured: http.StatusConflict,
	KindRateLimited:          http.StatusTooManyRequests,
	KindBackendUnavailable:   http.StatusServiceUnavailable,
	KindUpstreamTransient:    http.StatusServiceUnavailable,
	KindResourceExhausted:    http.StatusServiceUnavailable,
	KindConflict:             http.StatusConflict,
	KindInternal:             http.StatusInternalServerError,
}

// Error is the typed error value every domain operation returns instead of
// a bare error. It never carries internal exception text into a user-facing
// field; Message is the only part surfaced verbatim to callers.
type Error struct {
	Kind       Kind
	Message    string
	Field      string // set for KindValidation
	RetryAfter int    // seconds, set for KindRateLimited
	CorrelationID string // set for KindInternal
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code this error kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given kind with a caller-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, keeping the original error as the
// unexported cause for logging while Message stays the only user-facing text.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation is a convenience constructor for field-level validation errors.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// RateLimited is a convenience constructor carrying a Retry-After hint.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfterSeconds,
	}
}
