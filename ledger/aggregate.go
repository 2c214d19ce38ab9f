/*
aggregate.go - Per-company monthly rollups on sharded counters

PURPOSE:
  Maintains (companyId, month) rollups of revenue, cost, profit and
  bookings count by applying signed deltas whenever a voucher is created,
  amended, deleted or restored. Each field is its own sharded counter keyed
  "{companyId}_{field}_{monthId}", so many concurrent posters never contend
  on a single record.

MONTH-TRANSITION ALGORITHM:
  When an amendment moves a voucher to a different month (or company), the
  change is two independent deltas: subtract the old contribution from the
  old month, add the new contribution to the new month. When only amounts
  change within the same month, the single net delta (new - old) is applied
  in one pass. Same-month updates must never be a subtract-then-add round
  trip: that would transiently expose a wrong intermediate value to
  concurrent readers.

  bookingsCount is not "1 per update": the delta is 0 or +/-1 depending on
  whether the source type is count-eligible before and after the change.

LIFECYCLE:
  Aggregates are created lazily on first increment and never deleted, only
  decremented back toward zero when vouchers are deleted or move months.

SEE ALSO:
  - counter.go: The sharded counter primitive
  - hooks.go: The observer interface this implements
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	fieldRevenue = "revenue"
	fieldCost    = "cost"
	fieldProfit  = "profit"
	fieldCount   = "count"
)

// PeriodAggregator keeps per-company monthly rollups in step with the
// voucher set. It implements VoucherObserver and is registered with the
// JournalPoster and VoucherLifecycleManager so every delta applies inside
// the same transaction as the voucher write.
type PeriodAggregator struct {
	registry *Registry
	shards   int
}

func NewPeriodAggregator(registry *Registry, shards int) *PeriodAggregator {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &PeriodAggregator{registry: registry, shards: shards}
}

// CounterID builds the storage key for one rollup field.
func CounterID(company CompanyID, field string, month MonthID) string {
	return fmt.Sprintf("%s_%s_%s", company, field, month)
}

// Apply routes each field of a delta to its own sharded counter. Zero
// fields are skipped so untouched counters are never created.
func (a *PeriodAggregator) Apply(ctx context.Context, st CounterStore, company CompanyID, month MonthID, d AggregateDelta) error {
	if company == "" || d.IsZero() {
		return nil
	}
	counter := NewShardedCounter(st, a.shards)
	if err := counter.Increment(ctx, CounterID(company, fieldRevenue, month), d.Revenue); err != nil {
		return err
	}
	if err := counter.Increment(ctx, CounterID(company, fieldCost, month), d.Cost); err != nil {
		return err
	}
	if err := counter.Increment(ctx, CounterID(company, fieldProfit, month), d.Profit); err != nil {
		return err
	}
	if d.Count != 0 {
		if err := counter.Increment(ctx, CounterID(company, fieldCount, month), decimal.NewFromInt(d.Count)); err != nil {
			return err
		}
	}
	return nil
}

// Aggregate reads the externally visible rollup for one company-month.
// The read is not snapshot-consistent across shards or fields; see the
// counter.go contract.
func (a *PeriodAggregator) Aggregate(ctx context.Context, st CounterStore, company CompanyID, month MonthID) (Aggregate, error) {
	counter := NewShardedCounter(st, a.shards)
	out := Aggregate{CompanyID: company, MonthID: month}

	var err error
	if out.Revenue, err = counter.Read(ctx, CounterID(company, fieldRevenue, month)); err != nil {
		return Aggregate{}, err
	}
	if out.Cost, err = counter.Read(ctx, CounterID(company, fieldCost, month)); err != nil {
		return Aggregate{}, err
	}
	if out.Profit, err = counter.Read(ctx, CounterID(company, fieldProfit, month)); err != nil {
		return Aggregate{}, err
	}
	count, err := counter.Read(ctx, CounterID(company, fieldCount, month))
	if err != nil {
		return Aggregate{}, err
	}
	out.Count = count.IntPart()
	return out, nil
}

// =============================================================================
// OBSERVER IMPLEMENTATION
// =============================================================================

func (a *PeriodAggregator) OnVoucherCreated(ctx context.Context, tx Store, v *Voucher) error {
	return a.Apply(ctx, tx, v.CompanyID, v.Month(), a.registry.DeltasFor(v))
}

// OnVoucherUpdated applies the month-transition algorithm.
func (a *PeriodAggregator) OnVoucherUpdated(ctx context.Context, tx Store, before, after *Voucher) error {
	oldDelta := a.registry.DeltasFor(before)
	newDelta := a.registry.DeltasFor(after)

	sameBucket := before.CompanyID == after.CompanyID && before.Month() == after.Month()
	if sameBucket {
		// Single net delta: no transient window where the month shows a
		// partially moved value.
		return a.Apply(ctx, tx, after.CompanyID, after.Month(), newDelta.Sub(oldDelta))
	}

	if err := a.Apply(ctx, tx, before.CompanyID, before.Month(), oldDelta.Neg()); err != nil {
		return err
	}
	return a.Apply(ctx, tx, after.CompanyID, after.Month(), newDelta)
}

// OnVoucherDeleted negates the voucher's last-known contribution.
func (a *PeriodAggregator) OnVoucherDeleted(ctx context.Context, tx Store, v *Voucher) error {
	return a.Apply(ctx, tx, v.CompanyID, v.Month(), a.registry.DeltasFor(v).Neg())
}

// OnVoucherRestored re-adds the contribution removed at soft-delete.
func (a *PeriodAggregator) OnVoucherRestored(ctx context.Context, tx Store, v *Voucher) error {
	return a.Apply(ctx, tx, v.CompanyID, v.Month(), a.registry.DeltasFor(v))
}
