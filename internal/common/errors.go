package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	// Generic errors
	ErrInternal   = errors.New("internal error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrBadRequest = errors.New("bad request")

	// Auth handshake errors
	ErrNoPendingAuth   = errors.New("no pending auth request")
	ErrCodeTimeout     = errors.New("auth code timeout - no response from admin")
	ErrAuthIncomplete  = errors.New("authorization incomplete - cannot reach target page")
	ErrAlreadyResolved = errors.New("auth request already resolved")

	// Pipeline errors
	ErrNoFilesDownloaded = errors.New("no files were downloaded")
	ErrArtifactMissing   = errors.New("report file not found")

	// Resource-specific errors
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	ErrPriceNotFound   = fmt.Errorf("price %w", ErrNotFound)

	// Validation errors
	ErrValidation = errors.New("validation error")
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapInternal wraps an error as an internal error with context
func WrapInternal(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrInternal, err))
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
