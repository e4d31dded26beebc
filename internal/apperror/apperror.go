// Package apperror defines the typed error taxonomy shared by every
// component and translated to the HTTP surface by internal/httpserver.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract error kinds from spec.md §7.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindRateLimited       Kind = "rate_limited"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInternal          Kind = "internal"
)

// statusByKind maps each Kind to its HTTP status code.
var statusByKind = map[Kind]int{
	KindInvalidInput:       http.StatusBadRequest,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindAlreadyExists:      http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
	KindPayloadTooLarge:    http.StatusRequestEntityTooLarge,
	KindServiceUnavailable: http.StatusServiceUnavailable,
	KindInternal:           http.StatusInternalServerError,
}

// Error is a typed, taggable error carrying enough information for the HTTP
// layer to render spec.md's {error, message, statusCode, nextActions?} body
// without inspecting error strings.
type Error struct {
	Kind        Kind
	Message     string
	NextActions []string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// StatusCode returns the HTTP status code for this error's kind.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New creates a typed error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error wrapping an underlying cause (logged, never
// rendered verbatim to the client).
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithNextActions attaches client-facing follow-up hints.
func (e *Error) WithNextActions(actions ...string) *Error {
	e.NextActions = actions
	return e
}

// Invalid, Unauthorized, Forbidden, NotFound, Conflict, RateLimited,
// TooLarge, and Unavailable are constructor shorthands used throughout the
// service layer, mirroring the teacher's fmt.Errorf("...: %w", err) idiom
// but carrying a Kind instead of relying on string matching.
func Invalid(message string) *Error       { return New(KindInvalidInput, message) }
func Unauthorized(message string) *Error  { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error     { return New(KindForbidden, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Conflict(message string) *Error      { return New(KindAlreadyExists, message) }
func RateLimited(message string) *Error   { return New(KindRateLimited, message) }
func TooLarge(message string) *Error      { return New(KindPayloadTooLarge, message) }
func Unavailable(message string) *Error   { return New(KindServiceUnavailable, message) }
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// As extracts an *Error from err, reporting whether one was found.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal when err is not
// a tagged *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
