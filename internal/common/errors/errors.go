package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode is a closed set of application error codes. Each code maps to one
// externally visible error kind; everything uncategorised is INTERNAL.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeInsufficientPoints ErrorCode = "INSUFFICIENT_POINTS"
	ErrCodeAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	ErrCodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrCodeTransportError     ErrorCode = "TRANSPORT_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError is the typed application error carried across layer boundaries.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether the error is a not-found error.
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound
}

// IsInternal reports whether the error is an internal error.
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal || e.Code == ErrCodeTransportError
}

// WithDetail attaches a key/value pair to the error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new application error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a new application error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// AsAppError extracts an *AppError from err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the application error code of err, or ErrCodeInternal when the
// error carries no code.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Common constructors.

// NewNotFoundError creates a not-found error for a resource.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewPermissionDeniedError creates a permission error.
func NewPermissionDeniedError(reason string) *AppError {
	return New(ErrCodePermissionDenied, fmt.Sprintf("Permission denied: %s", reason)).
		WithDetail("reason", reason)
}

// NewPreconditionError creates a precondition-failed error with a human reason.
func NewPreconditionError(reason string) *AppError {
	return New(ErrCodePreconditionFailed, reason).WithDetail("reason", reason)
}

// NewAlreadyExistsError creates a unique-constraint conflict error.
func NewAlreadyExistsError(resource string, id interface{}) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewDatabaseError wraps a store failure.
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, fmt.Sprintf("Database operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewTransportError wraps a network-level failure talking to a platform.
func NewTransportError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTransportError, fmt.Sprintf("Platform request failed: %s", operation)).
		WithDetail("operation", operation)
}
