// Package apperr defines the error kinds returned by the services and
// rendered by the HTTP layer. Every kind maps to one HTTP status and one
// machine-readable code.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindForbidden          Kind = "FORBIDDEN"
	KindCSRFInvalid        Kind = "CSRF_INVALID"
	KindAccountDisabled    Kind = "ACCOUNT_DISABLED"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindValidation         Kind = "VALIDATION_FAILED"
	KindConflict           Kind = "CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindInternal           Kind = "INTERNAL_ERROR"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
)

// Status returns the HTTP status code of the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindCSRFInvalid, KindAccountDisabled:
		return http.StatusForbidden
	case KindInvalidToken, KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "not enough rights"}
	ErrCSRFInvalid        = &Error{Kind: KindCSRFInvalid, Message: "invalid CSRF token"}
	ErrAccountDisabled    = &Error{Kind: KindAccountDisabled, Message: "account is disabled"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "invalid or expired token"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "resource already exists"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable, Message: "database is disabled"}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error {
	return New(KindValidation, msg)
}

// Internal hides the cause behind a generic message; the cause is kept for logging.
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal error", err)
}

// KindOf reports the kind of err, INTERNAL_ERROR for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
