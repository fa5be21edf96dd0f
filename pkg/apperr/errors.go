// Package apperr defines the error kinds shared by every authorization component.
//
// Callers wrap one of the sentinel errors with context and classify results with
// errors.Is or KindOf:
//
//	if errors.Is(err, apperr.ErrNotFound) {
//		// role, rule or organization does not exist
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error taxonomy
var (
	ErrNotFound         = errors.New("not found")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation error")
)

// Kind classifies an error
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindCycleDetected    Kind = "cycle_detected"
	KindPermissionDenied Kind = "permission_denied"
	KindValidation       Kind = "validation_error"
	KindInternal         Kind = "internal"
)

// NotFound returns an ErrNotFound wrapped with a formatted message
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// CycleDetected returns an ErrCycleDetected wrapped with a formatted message
func CycleDetected(format string, args ...interface{}) error {
	return wrap(ErrCycleDetected, format, args...)
}

// PermissionDenied returns an ErrPermissionDenied wrapped with a formatted message
func PermissionDenied(format string, args ...interface{}) error {
	return wrap(ErrPermissionDenied, format, args...)
}

// Validation returns an ErrValidation wrapped with a formatted message
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

func wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCycleDetected):
		return KindCycleDetected
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPermissionDenied reports whether err is a permission-denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
