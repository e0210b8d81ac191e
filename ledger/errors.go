/*
errors.go - Centralized error types for the ledger

ERROR CATEGORIES:
  1. Caller errors   - NotFound, InvalidReason, InvalidQuantity, InsufficientStock
  2. Contention      - Conflict (retry budget exhausted)
  3. Infrastructure  - Unavailable (storage failure, deadline, cancellation)
  4. Batch outcomes  - PartialFailure (Deduct/Restore with failed lines)

Store implementations return ErrVersionConflict for a lost optimistic race;
the Mutator retries those and only surfaces ErrConflict once the budget is
spent.

USAGE:
  if errors.Is(err, ledger.ErrNotFound) { ... }
  var ise *ledger.InsufficientStockError
  if errors.As(err, &ise) { ... }
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
	// ErrNotFound is returned for an unknown variant or SKU within a tenant.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReason is returned when a reason is outside the taxonomy or
	// is not valid for the requested change mode. Programmer error.
	ErrInvalidReason = errors.New("invalid reason")

	// ErrInvalidQuantity is returned for zero or wrongly-signed deltas,
	// non-positive order quantities and negative thresholds.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInsufficientStock is returned when the stock policy forbids the
	// resulting negative quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConflict is returned when optimistic concurrency retries are exhausted.
	ErrConflict = errors.New("concurrent modification: retry budget exhausted")

	// ErrUnavailable is returned for storage failures and expired deadlines.
	// The mutation may or may not have been applied.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrVersionConflict is the store-level signal for a lost race.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateEntry is returned when a sale/return entry already exists
	// for the same (order, variant).
	ErrDuplicateEntry = errors.New("duplicate order entry")

	// ErrVariantExists is returned when creating a variant whose id or SKU
	// is already taken in the tenant.
	ErrVariantExists = errors.New("variant already exists")

	// ErrDuplicateSKU is returned for a SKU repeated inside one bulk batch.
	ErrDuplicateSKU = errors.New("duplicate sku in batch")

	// ErrInvalidLine is returned for a malformed bulk or order line.
	ErrInvalidLine = errors.New("invalid line")

	// ErrPartialFailure is returned when a batch applied some lines but not all.
	ErrPartialFailure = errors.New("batch partially applied")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MutationError wraps every error returned by Mutator.Mutate with the
// context needed to log or retry the call.
type MutationError struct {
	BusinessID BusinessID
	VariantID  VariantID
	Change     Change
	Reason     Reason
	Attempts   int
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutate %s/%s (%s, %s): %v", e.BusinessID, e.VariantID, e.Change, e.Reason, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// InsufficientStockError reports the quantity the policy refused.
type InsufficientStockError struct {
	VariantID VariantID
	Available int64
	Resulting int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, would become %d",
		e.VariantID, e.Available, e.Resulting)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// BatchError summarizes a partially applied Deduct or Restore.
// The per-line detail lives in the accompanying result.
type BatchError struct {
	OrderID string
	Applied int
	Failed  int
	First   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("order %s: %d line(s) applied, %d failed: %v", e.OrderID, e.Applied, e.Failed, e.First)
}

func (e *BatchError) Unwrap() []error { return []error{ErrPartialFailure, e.First} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller may retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}

// IsNotFound returns true if the error indicates a missing variant or SKU.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidReason) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidLine) ||
		errors.Is(err, ErrVariantExists) ||
		errors.Is(err, ErrDuplicateEntry)
}
