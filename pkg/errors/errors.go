package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, public string, opts ...func(*Metadata)) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func retryable(m *Metadata)   { m.Retryable = true }
func withDetails(m *Metadata) { m.DetailsAllowed = true }

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", retryable),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	reason  Reason
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Reason returns the machine-readable failure reason, if one was attached.
func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) WithReason(reason Reason) *Error {
	if e == nil {
		return nil
	}
	e.reason = reason
	return e
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err carries the given failure reason anywhere in its chain.
func Is(err error, reason Reason) bool {
	found := false
	walk(err, func(e *Error) bool {
		found = e.reason == reason
		return found
	})
	return found
}

// Newf is New with a formatted message and an attached reason.
func Newf(code Code, reason Reason, format string, args ...any) *Error {
	return &Error{code: code, reason: reason, message: fmt.Sprintf(format, args...)}
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// ReasonOf returns the first reason attached anywhere in err's chain.
func ReasonOf(err error) Reason {
	var reason Reason
	walk(err, func(e *Error) bool {
		reason = e.reason
		return reason != ""
	})
	return reason
}

// walk visits each *Error in the chain until visit returns true. Non-Error
// links are skipped through errors.As.
func walk(err error, visit func(*Error) bool) {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if visit(typed) {
			return
		}
	}
}
