package errors

import (
	"fmt"

	"github.com/yourusername/tmichat/internal/output"
)

// ErrorHandler logs client errors to the terminal and the error log file
type ErrorHandler struct {
	output *output.Output
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(output *output.Output) *ErrorHandler {
	return &ErrorHandler{
		output: output,
	}
}

// Handle logs err and returns its category
func (h *ErrorHandler) Handle(err error) ErrorType {
	return h.HandleWithContext(err, "")
}

// HandleWithContext logs err prefixed with context and returns its category.
// A nil error is ignored and reported as an empty type.
func (h *ErrorHandler) HandleWithContext(err error, context string) ErrorType {
	if err == nil {
		return ""
	}

	errType := ErrorTypeUnexpected
	message := "unexpected error"
	if ce, ok := AsClientError(err); ok {
		errType = ce.Type
		message = ce.Message
	}

	if context != "" {
		message = fmt.Sprintf("%s: %s", context, message)
		err = fmt.Errorf("%s: %w", context, err)
	}

	h.output.LogErrorToFile(string(errType), message, err)
	return errType
}
