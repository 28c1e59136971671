// Package errors provides the coded error type used across riceify.
//
// Every failure the core reports carries an ErrorCode so callers (and tests)
// can branch on the category without string matching. The categories mirror
// the switch engine's taxonomy: read and write failures on live files,
// validation failures caught before any mutation, cache corruption that
// degrades to a miss, concurrent-transaction rejection, and incomplete
// rollbacks that require manual intervention.
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Switch engine errors
	ErrRead               ErrorCode = "READ_ERROR"
	ErrWrite              ErrorCode = "WRITE_ERROR"
	ErrValidation         ErrorCode = "VALIDATION"
	ErrCacheCorruption    ErrorCode = "CACHE_CORRUPTION"
	ErrBusy               ErrorCode = "BUSY"
	ErrRollbackIncomplete ErrorCode = "ROLLBACK_INCOMPLETE"
	ErrCancelled          ErrorCode = "CANCELLED"
)

// Error represents a structured error with code and details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error

	// Paths lists the files the error is about, sorted.
	Paths []string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithPaths records the affected paths, deduplicated and sorted.
func (e *Error) WithPaths(paths ...string) *Error {
	seen := make(map[string]bool, len(e.Paths)+len(paths))
	merged := make([]string, 0, len(e.Paths)+len(paths))
	for _, p := range append(append([]string{}, e.Paths...), paths...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)
	e.Paths = merged
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an *Error
func GetErrorCode(err error) ErrorCode {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrUnknown
}

// GetErrorPaths returns the paths attached to an error, or nil
func GetErrorPaths(err error) []string {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Paths
	}
	return nil
}

// Sentinels for errors.Is comparisons against a code.
var (
	Busy               = &Error{Code: ErrBusy}
	RollbackIncomplete = &Error{Code: ErrRollbackIncomplete}
	Validation         = &Error{Code: ErrValidation}
)
