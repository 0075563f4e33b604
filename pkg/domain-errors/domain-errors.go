// Package domainerrors carries failure categories from stores and services
// up to the transport edge, where httputil maps them to status codes. Layers
// below the transport never mention HTTP.
package domainerrors

import "errors"

// Code is the stable category of a failure.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a categorised failure. Message is safe to show a client; Err
// keeps the cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code alone, so errors.Is(err, New(CodeNotFound, "")) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches code and msg to err. A code already present in the chain
// wins: a store's not_found stays not_found when a service rewraps it.
func Wrap(err error, code Code, msg string) error {
	if existing, ok := asError(err); ok {
		code = existing.Code
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost domain error in err has code.
func HasCode(err error, code Code) bool {
	e, ok := asError(err)
	return ok && e.Code == code
}

// CodeOf returns the outermost code, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	if e, ok := asError(err); ok {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable is true for timeouts and unavailable dependencies. Everything
// else fails the same way on a second attempt.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeTimeout, CodeUnavailable:
		return true
	default:
		return false
	}
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
