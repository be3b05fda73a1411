package registration

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a decision targets a registration
	// that does not exist.
	ErrNotFound = errors.New("registration_not_found")

	// ErrAlreadyDecided is returned when a decision targets a
	// registration that is no longer pending, including the case where
	// a concurrent decision won the conditional update.
	ErrAlreadyDecided = errors.New("already_decided")

	// ErrStoreUnavailable wraps repository failures. Callers must treat
	// it as "state unknown", never as "unregistered".
	ErrStoreUnavailable = errors.New("repository_unavailable")
)

// ValidationError reports a rejected submission field. Code is a stable
// snake_case identifier surfaced directly to API clients.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Code
}

func invalid(code string) *ValidationError {
	return &ValidationError{Code: code}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
