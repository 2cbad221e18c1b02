package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeUpstream indicates the backend failed or produced unusable output.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeContextLength indicates the prompt does not fit a token budget.
	ErrorTypeContextLength ErrorType = "context_length"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeContextLengthExceeded ErrorCode = "context_length_exceeded"
	ErrorCodeInconsistentLimits    ErrorCode = "inconsistent_limits"
	ErrorCodeDeploymentNotFound    ErrorCode = "deployment_not_found"
	ErrorCodeToolCallDecode        ErrorCode = "tool_call_decode_failed"
)

// APIError is a canonical API error that the frontdoor renders in its own
// wire format.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`

	// StatusCode overrides the status derived from Type.
	StatusCode int `json:"-"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// WithCause records the underlying error.
func (e *APIError) WithCause(err error) *APIError {
	e.Err = err
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// ErrUpstream creates an upstream error.
func ErrUpstream(message string) *APIError {
	return NewAPIError(ErrorTypeUpstream, message)
}

// ErrContextLength creates a context length exceeded error.
func ErrContextLength(message string) *APIError {
	return NewAPIError(ErrorTypeContextLength, message).
		WithCode(ErrorCodeContextLengthExceeded)
}
