// Package apierrors provides structured error classification and retry metadata
// for interactions with the remote analysis API.
package apierrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different categories of API failures for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeTransient represents transient transport errors (5xx, EOF, connection reset, timeout, no connectivity).
	ErrorTypeTransient ErrorType = iota
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadRequest represents malformed request errors (400, invalid parameters).
	ErrorTypeBadRequest
	// ErrorTypeProcessing represents server-side media processing failures (the upload
	// was delivered but the service rejected the input).
	ErrorTypeProcessing
	// ErrorTypeProtocol represents malformed or unexpected response shapes (client-side
	// parse failures). Treated as a defect signal, never retried.
	ErrorTypeProtocol
	// ErrorTypeUnknown represents unclassified errors. Unknown failures are not
	// assumed transient, so this type is non-retryable (fail closed).
	ErrorTypeUnknown

	// Terminal error types emitted by the retry executor itself.

	// ErrorTypeExhausted tags the last underlying failure after all permitted
	// attempts were used. Callers can unwrap to reach the original cause.
	ErrorTypeExhausted
	// ErrorTypeCanceled represents cooperative cancellation of the operation.
	// Always surfaced distinctly from failures.
	ErrorTypeCanceled
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeProcessing:
		return "processing"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeExhausted:
		return "exhausted"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "invalid"
	}
}

// Error represents a classified API error with retry metadata.
type Error struct {
	Err        error         // Wrapped underlying error
	Message    string        // Human-readable error message
	RetryAfter time.Duration // Server-directed wait from a Retry-After header, 0 if absent
	Type       ErrorType     // Classified error type
	StatusCode int           // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("api error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("api error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type should be retried.
// Uses an allowlist: only failures known to be transient qualify; anything
// unclassified fails closed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransient, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// Helper functions for error classification and checking

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified API error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified API error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified API error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// IsExhausted checks if the error indicates the retry budget was used up.
func IsExhausted(err error) bool {
	return Is(err, ErrorTypeExhausted)
}

// IsCanceled checks if the error represents cooperative cancellation.
func IsCanceled(err error) bool {
	return Is(err, ErrorTypeCanceled)
}

// NewExhaustedError tags the last observed failure after the retry budget was
// used. The cause stays reachable through Unwrap so callers can branch on the
// original failure ("worked then degraded" vs "never worked").
func NewExhaustedError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeExhausted,
		Err:     cause,
		Message: fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, cause),
	}
}

// NewCanceledError wraps a context cancellation, kept distinct from the
// operation's own failure so callers and metrics never conflate the two.
func NewCanceledError(cause error) *Error {
	return &Error{
		Type:    ErrorTypeCanceled,
		Err:     cause,
		Message: "operation canceled",
	}
}
