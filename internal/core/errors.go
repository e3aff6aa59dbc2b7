package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or output shape
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatState      ErrorCategory = "state"      // Cancelled or conflicting state
	ErrCatParse      ErrorCategory = "parse"      // Tool output could not be parsed
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// Public refinement error codes. These are the only codes a caller of the
// refinement API ever sees.
const (
	CodeCommandNotFound    = "COMMAND_NOT_FOUND"
	CodeTimeout            = "TIMEOUT"
	CodeParseError         = "PARSE_ERROR"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeProhibitedNodeType = "PROHIBITED_NODE_TYPE"
	CodeCancelled          = "CANCELLED"
	CodeUnknownError       = "UNKNOWN_ERROR"
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrCommandNotFound reports that the completion tool is not installed or not on PATH.
func ErrCommandNotFound(command string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeCommandNotFound,
		Message:   fmt.Sprintf("completion tool not found: %s", command),
		Retryable: false,
		Details:   map[string]interface{}{"command": command},
	}
}

// ErrParse creates an error for unusable tool output.
func ErrParse(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatParse,
		Code:      CodeParseError,
		Message:   message,
		Retryable: true,
	}
}

// ErrInvalidWorkflow creates an error for parsed output that breaks structural or semantic rules.
func ErrInvalidWorkflow(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeValidationError,
		Message:   message,
		Retryable: true,
	}
}

// ErrProhibitedNodeType reports nested-flow nodes whose type is not permitted.
// Offenders are formatted as "id (type)".
func ErrProhibitedNodeType(offenders []string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeProhibitedNodeType,
		Message:   fmt.Sprintf("nested flow contains prohibited node types: %v", offenders),
		Retryable: true,
		Details:   map[string]interface{}{"offenders": offenders},
	}
}

// ErrCancelled creates a user cancellation error.
func ErrCancelled() *DomainError {
	return ErrState(CodeCancelled, "refinement cancelled by user")
}

// ErrUnknown creates the catch-all error.
func ErrUnknown(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      CodeUnknownError,
		Message:   message,
		Retryable: true,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// GetCode extracts the error code, or CodeUnknownError for foreign errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return CodeUnknownError
}

// IsCancelled reports whether err represents a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled())
}

// UserGuidance returns a short actionable hint for a public error code.
func UserGuidance(code string) string {
	switch code {
	case CodeCommandNotFound:
		return "Install the completion tool and make sure it is on PATH, or set tool.path in the config."
	case CodeTimeout:
		return "The tool took too long. Try a simpler request or raise the timeout."
	case CodeParseError:
		return "The response could not be understood. Retry or rephrase the request."
	case CodeValidationError:
		return "The proposed workflow is invalid. Retry with more specific instructions."
	case CodeProhibitedNodeType:
		return "Nested flows cannot contain sub-agent, nested flow, or question nodes. Rephrase the request."
	case CodeCancelled:
		return ""
	default:
		return "An unexpected error occurred. See details for diagnostics."
	}
}

// MaxMessageLength is the maximum accepted user message length.
const MaxMessageLength = 100000
