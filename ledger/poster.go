/*
poster.go - Journal posting service

PURPOSE:
  The transactional heart of the system. Converts one business event into a
  balanced voucher and persists it atomically: the voucher document, the
  operational audit entry and the aggregate deltas all commit together or
  not at all.

PRECONDITIONS (rejected, never silently corrected):
  - at least one leg
  - every leg amount >= 0
  - sum(debits) == sum(credits) within Epsilon

IDEMPOTENCY:
  (SourceType, SourceID) is the natural key. Posting the same pair twice is
  a no-op that returns the existing voucher id, so retried business actions
  never double-post and never double-count in the aggregates.

AMENDMENTS:
  Posted vouchers are immutable except through Amend, which re-validates
  the invariant and drives the month-transition delta logic via the
  OnVoucherUpdated observers.

SEE ALSO:
  - aggregate.go: The observer that receives posting deltas
  - errors.go: Posting error taxonomy
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostParams carries everything needed to post one voucher.
type PostParams struct {
	SourceType SourceType
	SourceID   string
	CompanyID  CompanyID
	Currency   string
	Date       time.Time
	Debits     []Entry
	Credits    []Entry
	CreatedBy  string
}

// AmendParams carries the replacement date and legs for an amendment.
// Source identity, company and currency are fixed at post time.
type AmendParams struct {
	Date    time.Time
	Debits  []Entry
	Credits []Entry
	ActorID string
}

// JournalPoster posts and amends vouchers.
type JournalPoster struct {
	store     TxStore
	observers []VoucherObserver

	now   func() time.Time
	newID func() VoucherID
}

// NewJournalPoster wires a poster to its store and observers. Observers
// run synchronously inside the posting transaction, in registration order.
func NewJournalPoster(store TxStore, observers ...VoucherObserver) *JournalPoster {
	return &JournalPoster{
		store:     store,
		observers: observers,
		now:       time.Now,
		newID:     func() VoucherID { return VoucherID(uuid.NewString()) },
	}
}

// Post validates and persists one voucher. On an idempotent replay it
// returns the existing voucher id and performs no writes.
func (p *JournalPoster) Post(ctx context.Context, params PostParams) (VoucherID, error) {
	if err := validateEntries(params.SourceType, params.SourceID, params.Debits, params.Credits); err != nil {
		return "", err
	}

	var id VoucherID
	err := p.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.FindBySource(ctx, params.SourceType, params.SourceID)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			return nil
		}

		v := &Voucher{
			ID:         p.newID(),
			SourceType: params.SourceType,
			SourceID:   params.SourceID,
			CompanyID:  params.CompanyID,
			Currency:   params.Currency,
			Date:       params.Date,
			Debits:     append([]Entry(nil), params.Debits...),
			Credits:    append([]Entry(nil), params.Credits...),
			CreatedBy:  params.CreatedBy,
			CreatedAt:  p.now(),
		}
		if err := tx.InsertVoucher(ctx, v); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: p.now(),
			ActorID:   params.CreatedBy,
			Action:    AuditVoucherPosted,
			VoucherID: v.ID,
			Payload: map[string]string{
				"source_type": string(v.SourceType),
				"source_id":   v.SourceID,
				"debit_total": v.DebitTotal().String(),
			},
		}); err != nil {
			return err
		}
		if err := notifyCreated(ctx, tx, p.observers, v); err != nil {
			return err
		}
		id = v.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// PostSimple is the two-leg convenience form: one debit, one credit, same
// amount, trivially balanced.
func (p *JournalPoster) PostSimple(ctx context.Context, sourceType SourceType, sourceID string, company CompanyID, currency string, date time.Time, amount decimal.Decimal, debitAccount, creditAccount AccountID, note string) (VoucherID, error) {
	return p.Post(ctx, PostParams{
		SourceType: sourceType,
		SourceID:   sourceID,
		CompanyID:  company,
		Currency:   currency,
		Date:       date,
		Debits:     []Entry{{Account: debitAccount, Amount: amount, Note: note}},
		Credits:    []Entry{{Account: creditAccount, Amount: amount, Note: note}},
	})
}

// Amend replaces a voucher's date and legs. The aggregate effect is the
// month-transition delta computed by the observers from before/after.
func (p *JournalPoster) Amend(ctx context.Context, id VoucherID, params AmendParams) error {
	return p.store.WithTx(ctx, func(tx Store) error {
		before, err := tx.GetVoucher(ctx, id)
		if err != nil {
			return err
		}
		if before == nil {
			return ErrNotFound
		}
		if before.IsDeleted {
			return &InvalidTransitionError{VoucherID: id, From: "soft_deleted", Attempted: "amend"}
		}
		if err := validateEntries(before.SourceType, before.SourceID, params.Debits, params.Credits); err != nil {
			return err
		}

		after := before.Clone()
		after.Date = params.Date
		after.Debits = append([]Entry(nil), params.Debits...)
		after.Credits = append([]Entry(nil), params.Credits...)

		if err := tx.UpdateVoucher(ctx, after); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: p.now(),
			ActorID:   params.ActorID,
			Action:    AuditVoucherAmended,
			VoucherID: id,
			Payload: map[string]string{
				"old_month": string(before.Month()),
				"new_month": string(after.Month()),
			},
		}); err != nil {
			return err
		}
		return notifyUpdated(ctx, tx, p.observers, before, after)
	})
}

// validateEntries enforces the posting preconditions.
func validateEntries(sourceType SourceType, sourceID string, debits, credits []Entry) error {
	if len(debits) == 0 && len(credits) == 0 {
		return ErrEmptyVoucher
	}
	debitTotal := decimal.Zero
	for _, e := range debits {
		if e.Amount.IsNegative() {
			return ErrNegativeAmount
		}
		debitTotal = debitTotal.Add(e.Amount)
	}
	creditTotal := decimal.Zero
	for _, e := range credits {
		if e.Amount.IsNegative() {
			return ErrNegativeAmount
		}
		creditTotal = creditTotal.Add(e.Amount)
	}
	if debitTotal.Sub(creditTotal).Abs().GreaterThanOrEqual(Epsilon) {
		return &UnbalancedEntryError{
			SourceType: sourceType,
			SourceID:   sourceID,
			Debit:      debitTotal,
			Credit:     creditTotal,
		}
	}
	return nil
}
