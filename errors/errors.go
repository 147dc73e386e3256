package errors

import "fmt"

// DriverError is the interface satisfied by every error this module returns.
// It behaves like a normal error but allows attaching context without losing
// the underlying sentinel, so callers can still use errors.Is against the
// Fat32Error constants in errno.go.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

// -----------------------------------------------------------------------------

type customFat32Error struct {
	message       string
	originalError error
}

func (e customFat32Error) Error() string {
	return e.message
}

func (e customFat32Error) WithMessage(message string) DriverError {
	return customFat32Error{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customFat32Error) WrapError(err error) DriverError {
	return customFat32Error{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: fmt.Errorf("%w: %w", e, err),
	}
}

func (e customFat32Error) Unwrap() error {
	return e.originalError
}
