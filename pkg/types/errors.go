package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of gateway errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeInternal       ErrorType = "internal"
)

// GatewayError represents a structured, terminal error produced by one of the
// admission stages. It is serialized as the response body.
type GatewayError struct {
	Type        ErrorType              `json:"type"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Maintenance bool                   `json:"maintenance,omitempty"`
	Cause       error                  `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error type to its fixed HTTP status.
func (e *GatewayError) StatusCode() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsGatewayError converts any error into a *GatewayError. Unknown errors become
// internal errors carrying the original as cause.
func AsGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return NewInternalError(ErrCodeInternalError, "internal server error", err)
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeAuthentication,
		Code:    code,
		Message: message,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeAuthorization,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(code, message string, details map[string]interface{}) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeRateLimit,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewUnavailableError creates a new unavailable error
func NewUnavailableError(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeUnavailable,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewMaintenanceError creates the maintenance-mode variant of an unavailable error
func NewMaintenanceError(message string) *GatewayError {
	return &GatewayError{
		Type:        ErrorTypeUnavailable,
		Code:        ErrCodeMaintenance,
		Message:     message,
		Maintenance: true,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeMaintenance       = "MAINTENANCE"
	ErrCodeStoreUnavailable  = "STORE_UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)
