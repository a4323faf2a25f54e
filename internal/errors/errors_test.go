// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrManifest, Message: "write manifest", Err: io.ErrShortWrite},
			want:     "[MANIFEST_FAILED] write manifest: short write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestWrap_unwrap verifies the wrapped error stays reachable.
func TestWrap_unwrap(t *testing.T) {
	err := Wrap(ErrArchive, "zip export", io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should find the wrapped error")
	}
	if err.Unwrap() != io.ErrUnexpectedEOF {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), io.ErrUnexpectedEOF)
	}
}

// TestIs verifies code matching through fmt wrapping.
func TestIs(t *testing.T) {
	base := New(ErrWorkdirFailed, "mkdir")
	wrapped := fmt.Errorf("export: %w", base)

	if !Is(base, ErrWorkdirFailed) {
		t.Error("Is() should match direct AppError")
	}
	if !Is(wrapped, ErrWorkdirFailed) {
		t.Error("Is() should match AppError behind fmt.Errorf")
	}
	if Is(wrapped, ErrArchive) {
		t.Error("Is() should not match a different code")
	}
	if Is(io.EOF, ErrWorkdirFailed) {
		t.Error("Is() should be false for plain errors")
	}
}

// TestCodeOf verifies code extraction with a fallback.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(Newf(ErrValidation, "quantity %d", 0)); got != ErrValidation {
		t.Errorf("CodeOf() = %s, want %s", got, ErrValidation)
	}
	if got := CodeOf(io.EOF); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrInternal)
	}
}

// TestIsFatal verifies the export failure taxonomy.
func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{New(ErrPhotoStage, "open"), false},
		{New(ErrPhotoCompress, "encode"), false},
		{New(ErrLocationUnavailable, "no fix"), false},
		{New(ErrPublishFailed, "upload"), false},
		{New(ErrWorkdirFailed, "mkdir"), true},
		{New(ErrManifest, "write"), true},
		{New(ErrArchive, "zip"), true},
		{io.EOF, true},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}
