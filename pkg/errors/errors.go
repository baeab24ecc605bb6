// Package errors provides consistent error handling for the armada harness.
//
// This package wraps the standard errors package and provides:
// - Context propagation
// - Standardized error categories
package errors

import (
	"errors"
	"fmt"
)

// Error types for categorization
const (
	// ErrorTypeValidation indicates invalid input
	ErrorTypeValidation = "Validation"
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound = "NotFound"
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal = "Internal"
	// ErrorTypeCLI indicates an error from the armada CLI
	ErrorTypeCLI = "CLI"
)

// HarnessError is the base error type with category and context.
type HarnessError struct {
	// Cause is the underlying error
	Cause error
	// Message is the human-readable error message
	Message string
	// Type categorizes the error
	Type string
	// Context contains key-value pairs for debugging
	Context map[string]string
}

// Error implements the error interface.
func (e *HarnessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// New creates a new HarnessError with a message.
func New(message string) *HarnessError {
	return &HarnessError{
		Message: message,
		Type:    ErrorTypeInternal,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *HarnessError {
	if err == nil {
		return nil
	}
	return &HarnessError{
		Cause:   err,
		Message: message,
		Type:    ErrorTypeInternal,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *HarnessError {
	if err == nil {
		return nil
	}
	return &HarnessError{
		Cause:   err,
		Message: fmt.Sprintf(format, args...),
		Type:    ErrorTypeInternal,
	}
}

// Validation creates a validation error.
func Validation(message string) *HarnessError {
	return &HarnessError{
		Message: message,
		Type:    ErrorTypeValidation,
	}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...interface{}) *HarnessError {
	return &HarnessError{
		Message: fmt.Sprintf(format, args...),
		Type:    ErrorTypeValidation,
	}
}

// NotFound creates a not-found error.
func NotFound(resource, name string) *HarnessError {
	return &HarnessError{
		Message: fmt.Sprintf("%s %q not found", resource, name),
		Type:    ErrorTypeNotFound,
		Context: map[string]string{"resource": resource, "name": name},
	}
}

// CLIError creates an error from armada CLI execution.
func CLIError(err error, command string) *HarnessError {
	return &HarnessError{
		Cause:   err,
		Message: fmt.Sprintf("armada command failed: %s", command),
		Type:    ErrorTypeCLI,
		Context: map[string]string{"command": command},
	}
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType string) bool {
	var he *HarnessError
	if errors.As(err, &he) {
		return he.Type == errType
	}
	return false
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}
