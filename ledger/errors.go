/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the structured types carry the
  context an operator needs to act on a failure.

ERROR CATEGORIES:
  1. Posting errors - Precondition violations at post time
  2. Lifecycle errors - Invalid voucher state transitions
  3. Store errors - Transient database-level failures
  4. Audit errors - Imbalances the engine cannot repair on its own

USAGE:
  if errors.Is(err, ledger.ErrUnbalancedEntry) {
      // reject the business action, nothing was stored
  }

SEE ALSO:
  - poster.go: Uses posting errors
  - lifecycle.go: Uses lifecycle errors
  - audit.go: Uses ErrAmbiguousImbalance
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnbalancedEntry is returned when a post request violates the ledger
	// invariant. The voucher is rejected, never stored or silently corrected.
	ErrUnbalancedEntry = errors.New("unbalanced entry: debit and credit totals differ")

	// ErrEmptyVoucher is returned when a post request carries no legs.
	ErrEmptyVoucher = errors.New("voucher has no entries")

	// ErrNegativeAmount is returned when any leg carries a negative amount.
	// Direction is expressed by the debit/credit side, never by sign.
	ErrNegativeAmount = errors.New("entry amount must not be negative")

	// ErrDuplicateSource indicates a voucher already exists for the
	// (source type, source id) pair. Post treats this as an idempotent
	// no-op and returns the existing id; the sentinel exists for stores.
	ErrDuplicateSource = errors.New("voucher already exists for source")

	// ErrNotFound is returned by lifecycle transitions on a missing voucher.
	ErrNotFound = errors.New("voucher not found")

	// ErrInvalidTransition is returned on lifecycle misuse, e.g. purging a
	// voucher that was never soft-deleted.
	ErrInvalidTransition = errors.New("invalid voucher state transition")

	// ErrStoreUnavailable is a transient store failure. Posting and
	// lifecycle transitions are safe to retry blindly: idempotency keys and
	// transactional atomicity guarantee no duplicate effects.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionConflict is an optimistic-concurrency conflict.
	// Callers retry with backoff.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrAmbiguousImbalance is recorded when the balance audit finds an
	// unbalanced voucher with more than two legs. Auto-repair cannot tell
	// which leg is wrong, so the voucher is flagged for manual review.
	ErrAmbiguousImbalance = errors.New("ambiguous imbalance: more than two legs")

	// ErrUnknownAccount is returned when a voucher leg references an account
	// the registry cannot resolve and strict resolution was requested.
	ErrUnknownAccount = errors.New("unknown account")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnbalancedEntryError reports the totals that failed the invariant check.
type UnbalancedEntryError struct {
	SourceType SourceType
	SourceID   string
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced entry for %s/%s: debit %s != credit %s",
		e.SourceType, e.SourceID, e.Debit, e.Credit)
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// InvalidTransitionError reports a lifecycle misuse with both states.
type InvalidTransitionError struct {
	VoucherID VoucherID
	From      string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("voucher %s: cannot %s from state %s", e.VoucherID, e.Attempted, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTransactionConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnbalancedEntry) ||
		errors.Is(err, ErrEmptyVoucher) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnknownAccount)
}

// IsNotFound returns true if the error indicates a missing voucher.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
