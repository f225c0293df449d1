// internal/core/errors.go
package core

import (
	"context"
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps base with a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Code returns the code of the first *Error in err's chain, or "UNKNOWN".
func Code(err error) string {
	if err == nil {
		return ""
	}
	var fe *FinalizeError
	if errors.As(err, &fe) {
		return ErrFinalizeFailed.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	return "UNKNOWN"
}

// FinalizeError reports a retrieval whose output was fetched but could not
// be placed at its destination. The fetched data stays at TempPath.
type FinalizeError struct {
	TempPath    string
	Destination string
	Cause       error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("[%s] moving %s to %s: %v (output kept at %s)",
		ErrFinalizeFailed.Code, e.TempPath, e.Destination, e.Cause, e.TempPath)
}

func (e *FinalizeError) Unwrap() error { return e.Cause }

// Is matches ErrFinalizeFailed.
func (e *FinalizeError) Is(target error) bool {
	return target == ErrFinalizeFailed
}

// Predefined errors
var (
	// Action errors
	ErrInvalidInput       = &Error{Code: "INVALID_INPUT", Message: "invalid input"}
	ErrNotFound           = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrTransportFailure   = &Error{Code: "TRANSPORT_FAILURE", Message: "archive store request failed"}
	ErrRetrievalJobFailed = &Error{Code: "RETRIEVAL_JOB_FAILED", Message: "retrieval job failed"}
	ErrTimeout            = &Error{Code: "TIMEOUT", Message: "retrieval job did not complete in time"}
	ErrFinalizeFailed     = &Error{Code: "FINALIZE_FAILED", Message: "could not place retrieval output"}

	// Session errors
	ErrSessionClosed      = &Error{Code: "SESSION_CLOSED", Message: "vault session closed"}
	ErrCredentialsMissing = &Error{Code: "CREDENTIALS_MISSING", Message: "no AWS credentials available"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
