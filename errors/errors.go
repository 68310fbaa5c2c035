// Package errors provides standardized error handling for guildflow
// components. It classifies failures into the categories the action
// pipeline distinguishes (transient delivery errors, invalid
// configuration, permission denials, and fatal store errors) and
// provides helpers for consistent wrapping across the engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents delivery failures that are logged and
	// dropped without aborting the pipeline (message send failed, DM
	// blocked by recipient).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents configuration problems: malformed regex,
	// unresolved role or channel references, bad rule definitions.
	ErrorInvalid
	// ErrorPermission represents the platform denying a role or
	// moderation mutation.
	ErrorPermission
	// ErrorFatal represents unrecoverable failures for the operation in
	// progress, chiefly an unavailable state store.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorPermission:
		return "permission"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Store errors
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyExists        = errors.New("key already exists")
	ErrRevisionConflict = errors.New("revision mismatch (concurrent update)")

	// Rule and configuration errors
	ErrRuleNotFound   = errors.New("rule not found")
	ErrInvalidRule    = errors.New("invalid rule definition")
	ErrInvalidPattern = errors.New("invalid trigger pattern")

	// Resolution errors
	ErrChannelNotFound = errors.New("channel not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrMemberNotFound  = errors.New("member not found")

	// Delivery errors
	ErrDeliveryFailed = errors.New("delivery failed")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
)

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is a swallowed-and-logged delivery failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	return errors.Is(err, ErrDeliveryFailed)
}

// IsInvalid checks if an error is a configuration error.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidPattern) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrRoleNotFound)
}

// IsPermission checks if an error is a platform permission denial.
func IsPermission(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorPermission
	}
	return false
}

// IsFatal checks if an error should abort the operation in progress.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrStoreUnavailable)
}

// Classify returns the error class for an error. Unknown errors default
// to transient so the pipeline logs and continues.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	case IsPermission(err):
		return ErrorPermission
	default:
		return ErrorTransient
	}
}

// newClassified creates a new classified error. Internal helper; use the
// Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as a transient delivery failure with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as a configuration error with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapPermission wraps an error as a permission denial with context.
func WrapPermission(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorPermission, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}
