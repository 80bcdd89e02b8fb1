// Package apierr defines the error taxonomy shared by the registry services.
// Services return *Error values; HTTP handlers translate them with HTTPStatus.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidSignature  Kind = "invalid_signature"
	KindUnsupportedEvent  Kind = "unsupported_event"
	KindTransientDelivery Kind = "transient_delivery"
	KindInternal          Kind = "internal"
)

// Stable machine-readable codes.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidHierarchy  = "INVALID_HIERARCHY"
	CodeHasChildren       = "HAS_CHILDREN"
	CodeUnknownLevel      = "UNKNOWN_LEVEL"
	CodeLevelInUse        = "LEVEL_IN_USE"
	CodeInvalidTarget     = "INVALID_TARGET"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeDuplicateAPIKey   = "DUPLICATE_API_KEY"
	CodeAlreadyRegistered = "ALREADY_REGISTERED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeUnsupportedEvent  = "UNSUPPORTED_EVENT"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeInternal          = "INTERNAL"
)

// Error is a structured error with a stable kind and code.
type Error struct {
	Kind    Kind   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that keeps err as its cause.
func Wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation builds a validation error.
func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, format, args...)
}

// NotFound builds a not-found error for the named resource.
func NotFound(resource string, id any) *Error {
	return New(KindNotFound, CodeNotFound, "%s %v not found", resource, id)
}

// Conflict builds a conflict error.
func Conflict(code, format string, args ...any) *Error {
	return New(KindConflict, code, format, args...)
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error to the HTTP status code surfaced to API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindInvalidSignature:
		return http.StatusUnauthorized
	case KindUnsupportedEvent:
		return http.StatusUnprocessableEntity
	case KindTransientDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the JSON error body for err. Internal errors are reported
// without their cause so driver messages never reach API callers.
func Body(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message}
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error"}
}
