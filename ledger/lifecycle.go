/*
lifecycle.go - Voucher soft-delete / restore / purge state machine

STATES:
  Active -> SoftDeleted -> (Restored -> Active) | (Purged -> gone)

  SoftDelete marks the voucher deleted, mirrors its full payload into the
  deleted-records log, and withdraws its contribution from active balance
  computation - all in one transaction. Restore reverses it, reconstructing
  from the deleted log if the active document was itself removed. Purge is
  irreversible and only valid from SoftDeleted; purging an active voucher
  is a programming error, not something to allow silently.

  Observers run inside the same transaction, so aggregates always reflect
  the voucher's current state: there is never a committed moment with a
  deleted voucher still counted, or a restored one missing.

SEE ALSO:
  - store.go: DeletedLogStore
  - aggregate.go: The observer that withdraws/re-adds contributions
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VoucherLifecycleManager drives voucher state transitions.
type VoucherLifecycleManager struct {
	store     TxStore
	observers []VoucherObserver

	now func() time.Time
}

func NewVoucherLifecycleManager(store TxStore, observers ...VoucherObserver) *VoucherLifecycleManager {
	return &VoucherLifecycleManager{store: store, observers: observers, now: time.Now}
}

// SoftDelete transitions Active -> SoftDeleted.
func (m *VoucherLifecycleManager) SoftDelete(ctx context.Context, id VoucherID, actorID, reason string) error {
	return m.store.WithTx(ctx, func(tx Store) error {
		v, err := tx.GetVoucher(ctx, id)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		if v.IsDeleted {
			return &InvalidTransitionError{VoucherID: id, From: "soft_deleted", Attempted: "soft_delete"}
		}

		now := m.now()
		deleted := v.Clone()
		deleted.IsDeleted = true
		deleted.DeletedAt = &now
		deleted.DeletedBy = actorID
		deleted.DeleteReason = reason

		if err := tx.UpdateVoucher(ctx, deleted); err != nil {
			return err
		}
		if err := tx.PutDeleted(ctx, DeletedVoucher{
			Voucher:   *deleted.Clone(),
			DeletedAt: now,
			DeletedBy: actorID,
			Reason:    reason,
		}); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			ActorID:   actorID,
			Action:    AuditVoucherDeleted,
			VoucherID: id,
			Payload:   map[string]string{"reason": reason},
		}); err != nil {
			return err
		}
		// Withdraw the contribution using the pre-delete state.
		return notifyDeleted(ctx, tx, m.observers, v)
	})
}

// Restore transitions SoftDeleted -> Active. If the active document is
// gone it is reconstructed from the deleted-records log.
func (m *VoucherLifecycleManager) Restore(ctx context.Context, id VoucherID, actorID string) error {
	return m.store.WithTx(ctx, func(tx Store) error {
		v, err := tx.GetVoucher(ctx, id)
		if err != nil {
			return err
		}

		switch {
		case v != nil && !v.IsDeleted:
			return &InvalidTransitionError{VoucherID: id, From: "active", Attempted: "restore"}

		case v != nil:
			restored := v.Clone()
			restored.IsDeleted = false
			restored.DeletedAt = nil
			restored.DeletedBy = ""
			restored.DeleteReason = ""
			if err := tx.UpdateVoucher(ctx, restored); err != nil {
				return err
			}
			v = restored

		default:
			rec, err := tx.GetDeleted(ctx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return ErrNotFound
			}
			restored := rec.Voucher.Clone()
			restored.IsDeleted = false
			restored.DeletedAt = nil
			restored.DeletedBy = ""
			restored.DeleteReason = ""
			if err := tx.InsertVoucher(ctx, restored); err != nil {
				return err
			}
			v = restored
		}

		if err := tx.RemoveDeleted(ctx, id); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: m.now(),
			ActorID:   actorID,
			Action:    AuditVoucherRestored,
			VoucherID: id,
		}); err != nil {
			return err
		}
		return notifyRestored(ctx, tx, m.observers, v)
	})
}

// Purge transitions SoftDeleted -> gone. Irreversible.
func (m *VoucherLifecycleManager) Purge(ctx context.Context, id VoucherID, actorID string) error {
	return m.store.WithTx(ctx, func(tx Store) error {
		v, err := tx.GetVoucher(ctx, id)
		if err != nil {
			return err
		}
		if v == nil {
			// A voucher surviving only in the deleted log is still purgeable.
			rec, err := tx.GetDeleted(ctx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return ErrNotFound
			}
		} else if !v.IsDeleted {
			return &InvalidTransitionError{VoucherID: id, From: "active", Attempted: "purge"}
		}

		if v != nil {
			if err := tx.DeleteVoucher(ctx, id); err != nil {
				return err
			}
		}
		if err := tx.RemoveDeleted(ctx, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: m.now(),
			ActorID:   actorID,
			Action:    AuditVoucherPurged,
			VoucherID: id,
		})
	})
}
