// Package common defines shared constants, sentinel errors and small helpers
// used across the server layers. Callers should use errors.Is to match the
// sentinel kinds, including when they are carried by *Error.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorBadRequest   = errors.New("bad request")
	ErrorValidation   = errors.New("validation failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)

// Error is a failure tagged with one of the sentinel kinds above.
//
// Message is safe to show to the caller. Cause is the underlying error, kept
// for server-side logs only.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Conflict(msg string) error     { return newError(ErrorConflict, msg, nil) }
func Unauthorized(msg string) error { return newError(ErrorUnauthorized, msg, nil) }
func Forbidden(msg string) error    { return newError(ErrorForbidden, msg, nil) }
func NotFound(msg string) error     { return newError(ErrorNotFound, msg, nil) }
func BadRequest(msg string) error   { return newError(ErrorBadRequest, msg, nil) }
func Validation(msg string) error   { return newError(ErrorValidation, msg, nil) }

// Internal hides cause behind a generic message.
func Internal(cause error) error {
	return newError(ErrorInternal, "internal server error", cause)
}

// WithCause returns a copy of err (if it is an *Error) carrying cause.
func WithCause(err error, cause error) error {
	var e *Error
	if errors.As(err, &e) {
		return newError(e.Kind, e.Message, cause)
	}
	return err
}

// KindOf returns the sentinel kind carried by err, or ErrorInternal when err
// is not one of ours.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, kind := range []error{
		ErrorValidation, ErrorBadRequest, ErrorUnauthorized, ErrorForbidden,
		ErrorNotFound, ErrorConflict, ErrorInternal,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrorInternal
}

// PublicMessage returns the text that may be shown to a caller.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != ErrorInternal {
		return e.Error()
	}
	return "internal server error"
}
