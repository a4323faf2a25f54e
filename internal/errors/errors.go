// Package errors provides the error codes surfaced by the purchase log core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Export job errors. These abort the whole job.
	ErrExportFailed  ErrorCode = "EXPORT_FAILED"
	ErrWorkdirFailed ErrorCode = "WORKDIR_FAILED"
	ErrManifest      ErrorCode = "MANIFEST_FAILED"
	ErrArchive       ErrorCode = "ARCHIVE_FAILED"

	// Per-photo errors. The photo is dropped and the job continues.
	ErrPhotoStage    ErrorCode = "PHOTO_STAGE_FAILED"
	ErrPhotoCompress ErrorCode = "PHOTO_COMPRESS_FAILED"

	// Degraded results
	ErrLocationUnavailable ErrorCode = "LOCATION_UNAVAILABLE"
	ErrPublishFailed       ErrorCode = "PUBLISH_FAILED"

	// Maintenance
	ErrCacheClear ErrorCode = "CACHE_CLEAR_FAILED"
	ErrWipe       ErrorCode = "WIPE_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsFatal reports whether err aborts an export job. Per-photo and degraded
// errors are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrPhotoStage, ErrPhotoCompress, ErrLocationUnavailable, ErrPublishFailed:
		return false
	}
	return true
}
