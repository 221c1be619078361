// Package core provides shared types and the error taxonomy for the proxy.
package core

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType classifies a proxy error independently of any transport.
type ErrorType string

const (
	// ErrorTypeConfiguration indicates a missing credential or required setting
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeInvalidRequest indicates a client error from upstream (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401/403)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates the upstream resource does not exist (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeRateLimit indicates an upstream rate limit (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeUpstream indicates the upstream API is unavailable (5xx)
	ErrorTypeUpstream ErrorType = "upstream_unavailable_error"
	// ErrorTypeTransport indicates a network-level failure before a response
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeDecoding indicates non-text content where text was expected
	ErrorTypeDecoding ErrorType = "content_decoding_error"
	// ErrorTypePublish indicates a version-control operation failed
	ErrorTypePublish ErrorType = "publish_error"
)

// ProxyError is the normalized error produced by the mediation layer.
// Only the upstream adapter and the core constructors build these; route
// handlers map them to HTTP statuses and never construct them directly.
type ProxyError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ProxyError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Resource, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ProxyError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may reasonably retry the failed
// operation. The proxy itself never retries.
func (e *ProxyError) Retryable() bool {
	switch e.Type {
	case ErrorTypeUpstream, ErrorTypeTransport, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// HTTPStatusCode returns the status a route handler should respond with.
// Client-side kinds keep the upstream status when one was recorded.
func (e *ProxyError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeConfiguration:
		return http.StatusBadRequest
	case ErrorTypeInvalidRequest, ErrorTypeAuthentication, ErrorTypeNotFound, ErrorTypeRateLimit:
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode
		}
		return http.StatusBadRequest
	case ErrorTypeDecoding:
		return http.StatusUnprocessableEntity
	case ErrorTypeUpstream, ErrorTypeTransport:
		return http.StatusBadGateway
	case ErrorTypePublish:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map for responses
func (e *ProxyError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewConfigurationError creates an error for a missing credential or setting
func NewConfigurationError(message string) *ProxyError {
	return &ProxyError{
		Type:    ErrorTypeConfiguration,
		Message: message,
	}
}

// NewInvalidRequestError creates a client error with the given upstream status
func NewInvalidRequestError(resource string, statusCode int, message string, err error) *ProxyError {
	return &ProxyError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Resource:   resource,
		Err:        err,
	}
}

// NewAuthenticationError creates an authentication error (401/403)
func NewAuthenticationError(resource string, statusCode int, message string) *ProxyError {
	return &ProxyError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: statusCode,
		Resource:   resource,
	}
}

// NewNotFoundError creates a not found error (404)
func NewNotFoundError(resource string, message string) *ProxyError {
	return &ProxyError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Resource:   resource,
	}
}

// NewRateLimitError creates a rate limit error (429)
func NewRateLimitError(resource string, message string) *ProxyError {
	return &ProxyError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Resource:   resource,
	}
}

// NewUpstreamError creates an upstream-unavailable error (5xx)
func NewUpstreamError(resource string, statusCode int, message string, err error) *ProxyError {
	return &ProxyError{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Resource:   resource,
		Err:        err,
	}
}

// NewTransportError creates a network-level failure error
func NewTransportError(resource string, message string, err error) *ProxyError {
	return &ProxyError{
		Type:     ErrorTypeTransport,
		Message:  message,
		Resource: resource,
		Err:      err,
	}
}

// NewDecodingError creates a content decoding error for a single read
func NewDecodingError(resource string, message string) *ProxyError {
	return &ProxyError{
		Type:     ErrorTypeDecoding,
		Message:  message,
		Resource: resource,
	}
}

// NewPublishError creates an error for a failed version-control operation
func NewPublishError(message string, err error) *ProxyError {
	return &ProxyError{
		Type:    ErrorTypePublish,
		Message: message,
		Err:     err,
	}
}

// ParseUpstreamError normalizes a non-success upstream response into a
// ProxyError. The kind is derived solely from the status code class; the
// upstream message is preserved verbatim when the body carries one.
func ParseUpstreamError(resource string, statusCode int, body []byte) *ProxyError {
	message := string(body)
	if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
		message = m.String()
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(resource, statusCode, message)
	case statusCode == http.StatusNotFound:
		return NewNotFoundError(resource, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(resource, message)
	case statusCode >= 400 && statusCode < 500:
		return NewInvalidRequestError(resource, statusCode, message, nil)
	default:
		return NewUpstreamError(resource, statusCode, message, nil)
	}
}
