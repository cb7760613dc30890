// Package errors provides structured error handling for tidepool.
//
// Every failure surfaced by a pool, connection, transaction or the
// transaction coordinator is an *Error carrying an ErrorType. Callers
// branch on the type with IsType rather than on message text:
//
//	if errors.IsType(err, errors.ErrorTypePoolClosed) {
//	    // the pool was shut down underneath us
//	}
//
// Errors created with Wrap keep their cause, so the standard library
// errors.Is and errors.As see through them (for example a
// context_canceled error wraps context.Canceled).
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal engine errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCapability represents an operation the storage kind does not support
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeNotFound represents a missing document or record
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeEmpty represents a pop or peek on an empty stack
	ErrorTypeEmpty ErrorType = "empty"
	// ErrorTypeConflict represents a duplicate key or id
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypePoolClosed is returned by every pool call after Close
	ErrorTypePoolClosed ErrorType = "pool_closed"
	// ErrorTypeConnectionClosed is returned by calls on a released connection
	ErrorTypeConnectionClosed ErrorType = "connection_closed"
	// ErrorTypeTransactionComplete is returned by calls on a committed or rolled back transaction
	ErrorTypeTransactionComplete ErrorType = "transaction_complete"
	// ErrorTypeTransactionReadOnly is returned by mutating calls in a read-only transaction
	ErrorTypeTransactionReadOnly ErrorType = "transaction_read_only"
	// ErrorTypeTransactionInProgress is returned when a connection already has an open transaction
	ErrorTypeTransactionInProgress ErrorType = "transaction_in_progress"
	// ErrorTypeContextCanceled is returned when a waiter's context ends before it is served
	ErrorTypeContextCanceled ErrorType = "context_canceled"
	// ErrorTypeNoStorageAPI is returned by the coordinator when the context carries no storage API
	ErrorTypeNoStorageAPI ErrorType = "no_storage_api"
	// ErrorTypeMissingCallback is returned by the coordinator when no callback is supplied
	ErrorTypeMissingCallback ErrorType = "missing_callback"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable. Lifecycle violations
// are caller logic errors and never retryable; a canceled wait may be
// retried with a fresh context.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeContextCanceled:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the ErrorType of err, or the empty type when err is not
// an *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
