// Package errors provides custom error types and error handling utilities.
package errors

import (
	"fmt"
)

// Error codes.
const (
	// Recoverable per record or per query.
	CodeDataError   = "DATA_ERROR"
	CodeParseError  = "PARSE_ERROR"
	CodeLLMError    = "LLM_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeTimeout     = "TIMEOUT"

	// Fatal to the stage.
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeConfig     = "CONFIG_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// DataError creates a recoverable input-data error.
func DataError(message string, err error) *AppError {
	return Wrap(CodeDataError, message, err)
}

// ParseError creates an error for an unparseable model response.
func ParseError(message string) *AppError {
	return New(CodeParseError, message)
}

// LLMError creates an external-service error.
func LLMError(message string, err error) *AppError {
	return Wrap(CodeLLMError, message, err)
}

// RateLimitedError creates a rate limited error.
func RateLimitedError(err error) *AppError {
	return Wrap(CodeRateLimited, "rate limit exceeded", err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string, err error) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return Wrap(CodeTimeout, message, err)
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ConfigError creates a configuration error.
func ConfigError(message string) *AppError {
	return New(CodeConfig, message)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsRateLimited checks if error is a rate limit error.
func IsRateLimited(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == CodeRateLimited
	}
	return false
}

// IsParseError checks if error is a parse error.
func IsParseError(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == CodeParseError
	}
	return false
}
