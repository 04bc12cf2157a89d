package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for framework errors.
type ErrorCode string

// Input and capability error codes
const (
	MALFORMED_INPUT     ErrorCode = "MALFORMED_INPUT"
	CONFIGURATION_ERROR ErrorCode = "CONFIGURATION_ERROR"
	CAPABILITY_FAULT    ErrorCode = "CAPABILITY_FAULT"
)

// Dataset error codes
const (
	DATASET_NOT_FOUND    ErrorCode = "DATASET_NOT_FOUND"
	DATASET_LOAD_FAILED  ErrorCode = "DATASET_LOAD_FAILED"
	DATASET_PARSE_FAILED ErrorCode = "DATASET_PARSE_FAILED"
)

// Configuration error codes
const (
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Pipeline and reporting error codes
const (
	PIPELINE_STAGE_FAILED ErrorCode = "PIPELINE_STAGE_FAILED"
	PIPELINE_CANCELLED    ErrorCode = "PIPELINE_CANCELLED"
	REPORT_WRITE_FAILED   ErrorCode = "REPORT_WRITE_FAILED"
	REPORT_RENDER_FAILED  ErrorCode = "REPORT_RENDER_FAILED"
)

// FrameworkError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for error
// handling logic.
type FrameworkError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a FrameworkError with the same Code.
func (e *FrameworkError) Is(target error) bool {
	var fwErr *FrameworkError
	if errors.As(target, &fwErr) {
		return e.Code == fwErr.Code
	}
	return false
}

// NewError creates a new non-retryable FrameworkError with the given code and message.
func NewError(code ErrorCode, message string) *FrameworkError {
	return &FrameworkError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable FrameworkError with the given code
// and message. Use this for transient faults that may succeed on retry; retry
// policy itself belongs to the evaluator capability, not the scheduler.
func NewRetryableError(code ErrorCode, message string) *FrameworkError {
	return &FrameworkError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable FrameworkError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *FrameworkError {
	return &FrameworkError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err carries the given framework error code anywhere
// in its chain.
func IsCode(err error, code ErrorCode) bool {
	var fwErr *FrameworkError
	if errors.As(err, &fwErr) {
		return fwErr.Code == code
	}
	return false
}
