package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeFormat indicates a protocol line too short or empty to parse
	ErrorTypeFormat ErrorType = "Format"

	// ErrorTypeCapacity indicates a bounded queue rejected an item
	ErrorTypeCapacity ErrorType = "Capacity"

	// ErrorTypePrecondition indicates a programmer error such as starting an engine twice
	ErrorTypePrecondition ErrorType = "Precondition"

	// ErrorTypeTransport indicates the connection failed to deliver a line
	ErrorTypeTransport ErrorType = "Transport"

	// ErrorTypeConfig indicates an invalid configuration value
	ErrorTypeConfig ErrorType = "Config"

	// ErrorTypeUnexpected indicates an unexpected/unknown error
	ErrorTypeUnexpected ErrorType = "Unexpected"
)

// ClientError represents a structured error with a type and a readable message
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error  // Original error for logging
	Detail  string // Additional detail for logging
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (detail: %s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ClientError of the same type.
// This lets callers match on a sentinel such as ErrFormat regardless of detail.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is matching
var (
	ErrFormat       = &ClientError{Type: ErrorTypeFormat}
	ErrCapacity     = &ClientError{Type: ErrorTypeCapacity}
	ErrPrecondition = &ClientError{Type: ErrorTypePrecondition}
	ErrTransport    = &ClientError{Type: ErrorTypeTransport}
	ErrConfig       = &ClientError{Type: ErrorTypeConfig}
)

// NewFormatError creates an error for a raw line that cannot be parsed at all
func NewFormatError(raw string) *ClientError {
	return &ClientError{
		Type:    ErrorTypeFormat,
		Message: "line too short to be a protocol message",
		Detail:  fmt.Sprintf("raw=%q", raw),
	}
}

// NewPreconditionError creates an error for an API misuse
func NewPreconditionError(message string) *ClientError {
	return &ClientError{
		Type:    ErrorTypePrecondition,
		Message: message,
	}
}

// NewTransportError creates an error for a failed send or a fatal connection event
func NewTransportError(operation string, err error) *ClientError {
	return &ClientError{
		Type:    ErrorTypeTransport,
		Message: fmt.Sprintf("transport %s failed", operation),
		Err:     err,
	}
}

// NewCapacityError creates an error for a full queue
func NewCapacityError(capacity int) *ClientError {
	return &ClientError{
		Type:    ErrorTypeCapacity,
		Message: "queue is full",
		Detail:  fmt.Sprintf("capacity=%d", capacity),
	}
}

// NewConfigError creates an error for an invalid configuration field
func NewConfigError(format string, args ...interface{}) *ClientError {
	return &ClientError{
		Type:    ErrorTypeConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnexpectedError creates an error for unexpected failures
func NewUnexpectedError(err error) *ClientError {
	return &ClientError{
		Type:    ErrorTypeUnexpected,
		Message: "an unexpected error occurred",
		Err:     err,
	}
}

// IsClientError checks if an error is a ClientError
func IsClientError(err error) bool {
	_, ok := AsClientError(err)
	return ok
}

// AsClientError attempts to convert an error to a ClientError
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is is errors.Is, re-exported so callers importing this package under the
// name "errors" still have it.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// New is errors.New, re-exported for the same reason as Is.
func New(text string) error {
	return stderrors.New(text)
}
