package apierror

import "errors"

// Code represents an API error category independent of the transport layer.
// These codes describe what went wrong in domain terms, not HTTP terms.
type Code string

const (
	CodeValidation   Code = "validation_failed"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeRateLimited  Code = "rate_limited"
	CodeBadResponse  Code = "bad_response"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal_error"
)

// Error is the normalized shape every backend failure is converted to before
// it reaches caller code. StatusCode is the upstream HTTP status when one was
// observed, zero otherwise.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new API error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// WithStatus creates a new API error carrying the upstream HTTP status.
func WithStatus(code Code, msg string, status int) error {
	return &Error{Code: code, Message: msg, StatusCode: status}
}

// Wrap creates a new API error wrapping an existing error.
// If the wrapped error is already an API error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, StatusCode: existing.StatusCode, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is an API error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Status returns the upstream HTTP status recorded on an API error, or zero.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ToHTTPStatus maps an error code to the status the gateway itself responds with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeRateLimited:
		return 429
	case CodeBadResponse, CodeUnavailable:
		return 502
	default:
		return 500
	}
}
