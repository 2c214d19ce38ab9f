package ledger

import "context"

// =============================================================================
// VOUCHER OBSERVER - Synchronous in-transaction event hooks
// =============================================================================

// VoucherObserver receives lifecycle events for vouchers. Observers are
// invoked synchronously inside the same store transaction as the write
// that triggered them; the tx argument is the transactional view, and an
// observer error aborts the whole operation.
//
// This replaces external at-least-once trigger delivery: because the hook
// runs in-transaction exactly once per committed write, there is no
// duplicate-processing risk to mitigate downstream.
type VoucherObserver interface {
	OnVoucherCreated(ctx context.Context, tx Store, v *Voucher) error
	OnVoucherUpdated(ctx context.Context, tx Store, before, after *Voucher) error
	OnVoucherDeleted(ctx context.Context, tx Store, v *Voucher) error
	OnVoucherRestored(ctx context.Context, tx Store, v *Voucher) error
}

// notifyCreated fans an event out to every observer, stopping at the first
// error so the surrounding transaction rolls back.
func notifyCreated(ctx context.Context, tx Store, obs []VoucherObserver, v *Voucher) error {
	for _, o := range obs {
		if err := o.OnVoucherCreated(ctx, tx, v); err != nil {
			return err
		}
	}
	return nil
}

func notifyUpdated(ctx context.Context, tx Store, obs []VoucherObserver, before, after *Voucher) error {
	for _, o := range obs {
		if err := o.OnVoucherUpdated(ctx, tx, before, after); err != nil {
			return err
		}
	}
	return nil
}

func notifyDeleted(ctx context.Context, tx Store, obs []VoucherObserver, v *Voucher) error {
	for _, o := range obs {
		if err := o.OnVoucherDeleted(ctx, tx, v); err != nil {
			return err
		}
	}
	return nil
}

func notifyRestored(ctx context.Context, tx Store, obs []VoucherObserver, v *Voucher) error {
	for _, o := range obs {
		if err := o.OnVoucherRestored(ctx, tx, v); err != nil {
			return err
		}
	}
	return nil
}
