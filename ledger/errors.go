/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation   - bad input, type not allowed for the party model
  2. Not found    - transaction or party missing
  3. Unauthorized - row owned by a different owner
  4. Conflict     - concurrent writer / busy store, retryable
  5. Storage      - anything else from the store, reported generically

All of 1-3 are returned before a unit of work mutates anything. 4 and 5
roll back the whole unit.

USAGE:
  if errors.Is(err, ledger.ErrConflict) {
      // resubmit
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed command input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTypeForParty is returned when a transaction type is not
	// allowed for the given party model.
	ErrInvalidTypeForParty = errors.New("transaction type not allowed for party model")

	// ErrTransactionNotFound is returned when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrPartyNotFound is returned when a party does not exist for the model.
	ErrPartyNotFound = errors.New("party not found")

	// ErrUnauthorized is returned when the caller does not own the row.
	ErrUnauthorized = errors.New("not authorized")

	// ErrDuplicateParty is returned when a party name is taken for the owner.
	ErrDuplicateParty = errors.New("party name already exists")

	// ErrConflict is returned when the store aborted a unit of work because
	// of a concurrent writer. The caller may resubmit.
	ErrConflict = errors.New("concurrent modification, retry the request")

	// ErrStorage wraps unexpected store failures.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TypeMismatchError reports a type booked against the wrong party model.
type TypeMismatchError struct {
	Type       TransactionType
	PartyModel PartyModel
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("transaction type %q is not allowed for %s (allowed: %v)",
		e.Type, e.PartyModel, AllowedTypes(e.PartyModel))
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrInvalidTypeForParty
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on resubmission.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTypeForParty) ||
		errors.Is(err, ErrDuplicateParty)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrPartyNotFound)
}
