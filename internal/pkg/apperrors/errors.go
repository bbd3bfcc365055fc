package apperrors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Resource errors
	ErrResourceNotFound = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")

	// Store errors
	ErrFatal = errors.New("fatal error")
)

// Enrollment errors
var (
	ErrClassFull          = errors.New("class is full")
	ErrSessionFull        = errors.New("session is full")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrTimeConflict       = errors.New("time conflicts")
	ErrNotOpen            = errors.New("not open for enrollment")
	ErrSelfEnrollment     = errors.New("owner cannot enroll in own offering")
	ErrNotEnrolled        = errors.New("student is not enrolled")
	ErrAlreadySubmitted   = errors.New("already submitted")
	ErrPrerequisitesUnmet = errors.New("prerequisites not met")
)

// ErrorKind is the category of an application error the calling layer branches on.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindConflict   ErrorKind = "CONFLICT"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindValidation ErrorKind = "VALIDATION"
	KindFatal      ErrorKind = "FATAL"
)

// NewResourceNotFoundError creates a new custom error for resource not found with a message
func NewResourceNotFoundError(message string) error {
	return &CustomError{
		Err:     ErrResourceNotFound,
		Message: message,
	}
}

// NewConflictError creates a new custom error for conflict situations with a message
func NewConflictError(message string) error {
	return &CustomError{
		Err:     ErrConflict,
		Message: message,
	}
}

// NewForbiddenError creates a new custom error for permission denied with a message
func NewForbiddenError(message string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Message: message,
	}
}

// NewValidationError creates a new custom error for invalid input with a message
func NewValidationError(message string) *CustomError {
	return &CustomError{
		Err:     ErrValidationFailed,
		Message: message,
	}
}

// Conflict wraps a specific enrollment reason so both the reason and ErrConflict match errors.Is.
func Conflict(reason error, message string) error {
	return &CustomError{
		Err:     ErrConflict,
		Reason:  reason,
		Message: message,
	}
}

// Forbidden wraps a specific reason so both the reason and ErrPermissionDenied match errors.Is.
func Forbidden(reason error, message string) error {
	return &CustomError{
		Err:     ErrPermissionDenied,
		Reason:  reason,
		Message: message,
	}
}

// NewFatalError marks a store failure or a logical inconsistency. The cause stays reachable
// through errors.Is / errors.As.
func NewFatalError(op string, cause error) error {
	return &CustomError{
		Err:     ErrFatal,
		Reason:  cause,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// Kind classifies err. Anything that is not one of the expected business outcomes is fatal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrResourceNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrPermissionDenied):
		return KindForbidden
	case errors.Is(err, ErrValidationFailed):
		return KindValidation
	default:
		return KindFatal
	}
}

// IsExpected reports whether err is a business outcome rather than a failure.
func IsExpected(err error) bool {
	k := Kind(err)
	return k != "" && k != KindFatal
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err     error
	Reason  error
	Message string
	Code    string
	Details map[string]interface{}
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Reason != nil {
		return e.Reason.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the multi-error form of errors.Unwrap
func (e *CustomError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	return errs
}

// NewCustomError creates a CustomError with underlying error
func NewCustomError(err error, message string) *CustomError {
	return &CustomError{
		Err:     err,
		Message: message,
	}
}

// WithDetails adds context details to the error
func (e *CustomError) WithDetails(details map[string]interface{}) *CustomError {
	e.Details = details
	return e
}

// WithCode adds an error code
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}
