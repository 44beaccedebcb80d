// Package errors provides structured errors for the admin HTTP surface,
// mapping error categories to status codes and JSON bodies.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an error, used for status mapping and logs.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeNotFound     ErrorType = "not_found"
	TypeUnauthorized ErrorType = "unauthorized"
	TypeRateLimited  ErrorType = "rate_limited"
	TypeUnavailable  ErrorType = "unavailable"
	TypeInternal     ErrorType = "internal"
)

// Error is a structured error with type, message, optional cause and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to a status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error { return newError(TypeValidation, message, nil) }

func NotFoundError(message string) *Error { return newError(TypeNotFound, message, nil) }

func UnauthorizedError(message string) *Error { return newError(TypeUnauthorized, message, nil) }

func RateLimitedError(message string) *Error { return newError(TypeRateLimited, message, nil) }

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithContext adds a context field (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	ctx := e.Context
	if len(ctx) == 0 {
		ctx = nil
	}
	return ErrorResponse{Error: e.Message, Type: e.Type, Context: ctx}
}

// AsStructuredError returns err as *Error, wrapping anything else as internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	if structured, ok := errors.AsType[*Error](err); ok {
		return structured
	}
	return InternalError("internal server error", err)
}
