package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	ErrDuplicateIdentity = fmt.Errorf("%w: identity already registered", ErrConflict)
	ErrDuplicateWallet   = fmt.Errorf("%w: wallet already bound", ErrConflict)

	ErrTransport   = errors.New("transport error")
	ErrThrottled   = errors.New("throttled")
	ErrFatalConfig = errors.New("fatal configuration error")
)

// ValidationError reports a record that violates a store-boundary invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ThrottleError is returned by upstream calls rejected for rate limiting.
// Wait is the upstream's hint; zero means no hint was given.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("throttled: retry after %s", e.Wait)
	}
	return "throttled"
}

func (e *ThrottleError) Unwrap() error { return ErrThrottled }
