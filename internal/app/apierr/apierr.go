// Package apierr defines the domain error taxonomy shared by every service
// in this module. Domain errors carry a stable code so HTTP handlers (or any
// other external collaborator) can map them to a transport-specific status
// without parsing error strings.
package apierr

import (
	"errors"
	"fmt"
)

// Code enumerates the taxonomy. These never change meaning once shipped.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeAuthentication      Code = "AUTHENTICATION_ERROR"
	CodeAuthorization       Code = "AUTHORIZATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is a structured, code-carrying domain error. It implements the
// standard error interface and supports errors.Is/As via Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target shares the same Code, so callers can write
// errors.Is(err, apierr.New(apierr.CodeNotFound, "")) style checks, or more
// commonly compare via CodeOf.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// New constructs a domain error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs a domain error wrapping an underlying cause. The cause is
// never leaked to callers via Error() beyond its %v rendering — internal
// details (DB text, file paths, IPs) must be scrubbed by the caller before
// using Wrap for anything that crosses a trust boundary; INTERNAL_ERROR in
// particular should generally use Internal() below instead.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, fmt.Sprintf(format, args...))
}

func InsufficientCredits(format string, args ...interface{}) *Error {
	return New(CodeInsufficientCredits, fmt.Sprintf(format, args...))
}

// Internal collapses an unknown error into a generic, externally-safe
// INTERNAL_ERROR. The original error is retained as the wrapped cause for
// logging but must never be rendered to an external caller.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "an internal error occurred", cause: cause}
}

// CodeOf extracts the taxonomy code from err, defaulting to CodeInternal for
// any error that isn't one of ours.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
