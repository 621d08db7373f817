package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfigurationInvalid is wrapped by every ruleset validation failure.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrStreamTerminated is returned by Feed after a non-recoverable parse error.
	ErrStreamTerminated = errors.New("stream terminated")

	// ErrStreamClosed is returned by Feed and Flush after Flush or Abort.
	ErrStreamClosed = errors.New("stream closed")
)

// ParseError describes malformed input found by the streaming parser.
// Recoverable errors are scoped to one record; the parser resynchronizes at
// the next record boundary. Non-recoverable errors end the stream.
type ParseError struct {
	Reason      string `json:"reason"`
	Recoverable bool   `json:"recoverable"`
	// Offset is the absolute byte offset in the stream where the error was detected.
	Offset int64  `json:"offset"`
	Seq    uint64 `json:"seq,omitempty"`
	// Path is the field that was being read when the record was cut.
	Path string `json:"path,omitempty"`
}

func (e *ParseError) Error() string {
	kind := "recoverable"
	if !e.Recoverable {
		kind = "fatal"
	}
	return fmt.Sprintf("parse error (%s) at offset %d: %s", kind, e.Offset, e.Reason)
}

// ConfigError reports a single invalid ruleset entry.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfigurationInvalid, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfigurationInvalid, e.Err}
}

// NewConfigError builds a ConfigError with a formatted cause.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ErrorType represents the type of error returned by the HTTP surface
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeConfiguration indicates a rejected ruleset (422)
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeStream indicates a stream that could not be completed (500)
	ErrorTypeStream ErrorType = "stream_error"
	// ErrorTypeNotFound indicates a missing audit entry (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeUnavailable indicates a disabled or unreachable backend (503)
	ErrorTypeUnavailable ErrorType = "unavailable_error"
)

// APIError is the error type rendered by the sidecar HTTP surface
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeConfiguration:
		return http.StatusUnprocessableEntity
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *APIError) ToJSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewConfigurationError creates an error for a rejected ruleset (422)
func NewConfigurationError(err error) *APIError {
	return &APIError{
		Type:       ErrorTypeConfiguration,
		Message:    err.Error(),
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// NewStreamError creates an error for a stream that failed mid-flight (500)
func NewStreamError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeStream,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAuthenticationError creates an authentication error (401)
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a not found error (404)
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnavailableError creates a service unavailable error (503)
func NewUnavailableError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}
