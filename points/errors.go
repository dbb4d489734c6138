/*
errors.go - Centralized error types for the points engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Store errors - persistence failures, never silently swallowed
  2. Not-found errors - operations that assume an existing row or order
  3. Validation errors - bad admin/maintenance input

NOTE ON REFUSALS:
  An insufficient balance during redemption is NOT an error. Redeem returns
  false; it is an expected outcome. Only faults live here.
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStoreFailure is returned (wrapped) when the backing store cannot
	// complete a read or write. Callers must not mark idempotence markers
	// after seeing it, so the operation stays retry-safe.
	ErrStoreFailure = errors.New("store failure")

	// ErrRecordNotFound is returned when an operation assumes a ledger row
	// that does not exist (admin set-points on a never-seen user). Accrual
	// paths create rows lazily and never return this.
	ErrRecordNotFound = errors.New("ledger record not found")

	// ErrOrderNotFound is returned when the order source cannot load an
	// order. Bulk backfill skips these instead of aborting.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUserNotFound is returned when the user directory has no such user.
	ErrUserNotFound = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports invalid input to an admin or maintenance call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StoreError wraps an underlying persistence failure with the operation
// that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return ErrStoreFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || IsNotFound(err)
}
