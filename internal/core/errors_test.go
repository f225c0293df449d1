// internal/core/errors_test.go
package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "[TEST_ERROR] test message" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Code: "WRAP", Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return cause")
	}
}

func TestError_Is(t *testing.T) {
	if !errors.Is(WrapError(ErrNotFound, errors.New("gone")), ErrNotFound) {
		t.Error("wrapped error should match by code")
	}
	if errors.Is(ErrTimeout, ErrRetrievalJobFailed) {
		t.Error("timeout must not match job failure")
	}
}

func TestWrapError(t *testing.T) {
	cause := errors.New("original")
	wrapped := WrapError(ErrTransportFailure, cause)
	if wrapped.Cause != cause {
		t.Error("cause not set")
	}
	if wrapped.Code != ErrTransportFailure.Code {
		t.Error("code not preserved")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"direct", ErrInvalidInput, "INVALID_INPUT"},
		{"wrapped by fmt", fmt.Errorf("upload: %w", WrapError(ErrNotFound, errors.New("x"))), "NOT_FOUND"},
		{"finalize", &FinalizeError{TempPath: "/tmp/a", Destination: "/b", Cause: errors.New("no dir")}, "FINALIZE_FAILED"},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), "CANCELED"},
		{"plain", errors.New("boom"), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFinalizeError_KeepsTempPath(t *testing.T) {
	err := &FinalizeError{TempPath: "/tmp/out", Destination: "/missing/out.json", Cause: errors.New("no such directory")}
	if !errors.Is(err, ErrFinalizeFailed) {
		t.Error("finalize error should match ErrFinalizeFailed")
	}
	var fe *FinalizeError
	if !errors.As(fmt.Errorf("inventory: %w", err), &fe) || fe.TempPath != "/tmp/out" {
		t.Error("temp path should be recoverable from wrapped error")
	}
}
