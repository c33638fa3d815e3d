// Package apperrors defines the error taxonomy shared by the gate, the pipeline and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an evaluation (or one of its files) does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates the requested state transition is not allowed right now.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnsupportedFormat indicates a document extension the extractor cannot read.
	ErrCodeUnsupportedFormat ErrorCode = "unsupported_format"
	// ErrCodeExtractionFailed indicates a malformed or empty document binary.
	ErrCodeExtractionFailed ErrorCode = "extraction_failed"
	// ErrCodeModelResponseEmpty indicates the generative model returned no text.
	ErrCodeModelResponseEmpty ErrorCode = "model_response_empty"
	// ErrCodeModelResponseMalformed indicates the model text is not JSON of the expected shape.
	ErrCodeModelResponseMalformed ErrorCode = "model_response_malformed"
	// ErrCodeMissingReference indicates a reference document lookup returned nothing.
	ErrCodeMissingReference ErrorCode = "missing_reference"
	// ErrCodeTransientInfra indicates the queue or store was unavailable.
	ErrCodeTransientInfra ErrorCode = "transient_infra"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with the given code and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return Newf(ErrCodeNotFound, format, args...)
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return Newf(ErrCodeConflict, format, args...)
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTransient reports whether the error came from unavailable infrastructure.
func IsTransient(err error) bool {
	return isCode(err, ErrCodeTransientInfra)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
// The outermost AppError in the chain wins.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
