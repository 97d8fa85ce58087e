// Package errors provides structured errors with stable codes for the
// three failure tiers stencil distinguishes: run-aborting, per-source-file
// recoverable, and per-target warnings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies an error category for stable testing and for
// deciding which failure tier an error belongs to.
type ErrorCode string

const (
	ErrUnknown ErrorCode = "UNKNOWN"

	// Run-aborting errors
	ErrConfigLoad ErrorCode = "CONFIG_LOAD"
	ErrStoreLoad  ErrorCode = "STORE_LOAD"
	ErrStoreSave  ErrorCode = "STORE_SAVE"
	ErrDiscovery  ErrorCode = "DISCOVERY"

	// Per-source-file recoverable errors
	ErrSourceRead      ErrorCode = "SOURCE_READ"
	ErrHeaderRead      ErrorCode = "HEADER_READ"
	ErrHeaderExec      ErrorCode = "HEADER_EXEC"
	ErrSettingsInvalid ErrorCode = "SETTINGS_INVALID"
	ErrHashRecord      ErrorCode = "HASH_RECORD"

	// Per-target errors, reported as warnings and never propagated
	ErrTemplateParse  ErrorCode = "TEMPLATE_PARSE"
	ErrRender         ErrorCode = "RENDER"
	ErrDirCreate      ErrorCode = "DIR_CREATE"
	ErrTargetWrite    ErrorCode = "TARGET_WRITE"
	ErrPermissionCopy ErrorCode = "PERMISSION_COPY"
)

// StencilError is a structured error with a code and optional details.
type StencilError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *StencilError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *StencilError) Unwrap() error {
	return e.Wrapped
}

// Is matches two StencilErrors by code.
func (e *StencilError) Is(target error) bool {
	var targetErr *StencilError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new StencilError with the given code and message
func New(code ErrorCode, message string) *StencilError {
	return &StencilError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new StencilError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *StencilError {
	return &StencilError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a StencilError
func Wrap(err error, code ErrorCode, message string) *StencilError {
	if err == nil {
		return nil
	}
	return &StencilError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *StencilError {
	if err == nil {
		return nil
	}
	return &StencilError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *StencilError) WithDetail(key string, value interface{}) *StencilError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var serr *StencilError
	if errors.As(err, &serr) {
		return serr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if
// the error is not a StencilError.
func GetErrorCode(err error) ErrorCode {
	var serr *StencilError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ErrUnknown
}
