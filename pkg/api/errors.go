package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeAuthentication  ErrorType = "authentication_error"
	ErrorTypePermission      ErrorType = "permission_error"
	ErrorTypeCORS            ErrorType = "cors_error"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnavailable     ErrorType = "service_unavailable"
)

// Stable machine-readable error codes.
const (
	CodeUnauthenticated = "Unauthenticated"
	CodeForbidden       = "Forbidden"
	CodeCORSDenied      = "CorsDenied"
	CodeRateLimited     = "RateLimited"
	CodeInternal        = "InternalError"
	CodeNotConfigured   = "NotConfigured"
)

// APIError is the error object written to clients.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Code)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewUnauthenticatedError creates the error returned with HTTP 401.
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Type:    ErrorTypeAuthentication,
		Code:    CodeUnauthenticated,
		Message: "authentication required",
	}
}

// NewForbiddenError creates the error returned with HTTP 403 after authorization fails.
func NewForbiddenError() *APIError {
	return &APIError{
		Type:    ErrorTypePermission,
		Code:    CodeForbidden,
		Message: "access denied",
	}
}

// NewCORSDeniedError creates the error returned for disallowed cross-origin requests.
func NewCORSDeniedError() *APIError {
	return &APIError{
		Type:    ErrorTypeCORS,
		Code:    CodeCORSDenied,
		Message: "origin not allowed",
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError() *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Code:    CodeInternal,
		Message: "internal server error",
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Code:    CodeRateLimited,
		Message: "rate limit exceeded",
	}
}

// NewNotConfiguredError creates an APIError for surfaces that have not received
// their configuration yet.
func NewNotConfiguredError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUnavailable,
		Code:    CodeNotConfigured,
		Message: message,
	}
}
