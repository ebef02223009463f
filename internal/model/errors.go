package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotConfigured  = errors.New("backend not configured")
	ErrUpstream       = errors.New("upstream error")
	ErrTimeout        = errors.New("timeout")
	ErrNetwork        = errors.New("network error")
	ErrParse          = errors.New("parse error")
	ErrInvalidKey     = errors.New("invalid order key")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewConfigurationError creates a 503 error for missing backend credentials.
// Surfaced as service-unavailable rather than a generic failure so the
// storefront can show a "payments temporarily unavailable" message.
func NewConfigurationError() *APIError {
	return &APIError{
		Code:       "BACKEND_UNCONFIGURED",
		Message:    "payment service is not configured",
		StatusCode: 503,
		Err:        ErrNotConfigured,
	}
}

// NewUpstreamError creates an error for backend HTTP failures.
// 502-class responses are annotated specially because the commerce backend
// is known to be intermittently unavailable; callers use IsBadGateway to
// decide whether a retry is worthwhile.
func NewUpstreamError(statusCode int, preview string) *APIError {
	if statusCode == 502 {
		return &APIError{
			Code:       "UPSTREAM_UNAVAILABLE",
			Message:    "the store backend is temporarily unavailable, please try again in a moment",
			StatusCode: 503,
			Err:        fmt.Errorf("%w: status 502: %s", ErrUpstream, preview),
		}
	}
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("store backend request failed (status %d)", statusCode),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: status %d: %s", ErrUpstream, statusCode, preview),
	}
}

// NewTimeoutError creates a 504 error for a timed-out backend request.
func NewTimeoutError(op string) *APIError {
	return &APIError{
		Code:       "UPSTREAM_TIMEOUT",
		Message:    "the store backend took too long to respond, please try again",
		StatusCode: 504,
		Err:        fmt.Errorf("%w: %s", ErrTimeout, op),
	}
}

// NewNetworkError creates a 503 error for a failed connection.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:       "NETWORK_ERROR",
		Message:    "could not reach the store backend, please try again",
		StatusCode: 503,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewParseError creates a 500 error for a malformed backend response body.
func NewParseError(op string, err error) *APIError {
	return &APIError{
		Code:       "PARSE_ERROR",
		Message:    "the store backend returned an unexpected response",
		StatusCode: 500,
		Err:        fmt.Errorf("%w: %s: %v", ErrParse, op, err),
	}
}

// NewInvalidKeyError creates a 403 error for an order key mismatch.
// The key is a capability token; a mismatch means the caller has no
// right to view or pay for the order.
func NewInvalidKeyError() *APIError {
	return &APIError{
		Code:       "INVALID_ORDER_KEY",
		Message:    "invalid order key, please check your order link",
		StatusCode: 403,
		Err:        ErrInvalidKey,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsBadGateway reports whether err wraps a 502-class upstream failure.
// Only these are retried at order-creation time.
func IsBadGateway(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "UPSTREAM_UNAVAILABLE"
	}
	return false
}

// ErrorPreviewLen bounds how much of a backend error body is kept for
// diagnostics. Raw bodies are never surfaced to callers beyond this.
const ErrorPreviewLen = 200

// Preview truncates a backend response body for diagnostic messages.
func Preview(body []byte) string {
	if len(body) > ErrorPreviewLen {
		return string(body[:ErrorPreviewLen])
	}
	return string(body)
}
