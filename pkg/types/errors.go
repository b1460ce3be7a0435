package types

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is reported when an operation was stopped before it finished
	ErrCancelled = errors.New("operation cancelled")
	// ErrUnsupportedPlatform is returned by readers with no implementation for the running OS
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error for field
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResolutionError is returned when a hostname cannot be turned into an address.
// It is kept apart from probe failures so callers can tell bad input from a down host.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not resolve %s", e.Host)
	}
	return fmt.Sprintf("could not resolve %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// InvocationError is returned when a diagnostic command cannot be run at all
type InvocationError struct {
	Command string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Command, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a configuration error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsResolutionError reports whether err is a resolution error
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
