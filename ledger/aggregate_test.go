package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripledger/ledger-engine/ledger"
	"github.com/tripledger/ledger-engine/ledger/store"
)

// =============================================================================
// COUNTER KEY FORMAT
// =============================================================================

func TestCounterID_Format(t *testing.T) {
	assert.Equal(t, "acme_revenue_2025-01", ledger.CounterID("acme", "revenue", "2025-01"))
}

// =============================================================================
// DELTA DERIVATION
// =============================================================================

func TestDeltasFor_RevenueAndCostSides(t *testing.T) {
	// Revenue accumulates on the credit side of revenue accounts, cost on
	// the debit side of expense accounts. Profit is their difference.

	r := newTestRegistry()
	v := &ledger.Voucher{
		SourceType: ledger.SourceBooking,
		CompanyID:  "acme",
		Date:       jan15(),
		Debits: []ledger.Entry{
			{Account: "ar-acme", Amount: dec("1000")},
			{Account: "exp-supplier", Amount: dec("650")},
		},
		Credits: []ledger.Entry{
			{Account: "rev-tickets", Amount: dec("1000")},
			{Account: "sup-iata", Amount: dec("650")},
		},
	}

	d := r.DeltasFor(v)
	assert.True(t, dec("1000").Equal(d.Revenue), "revenue %s", d.Revenue)
	assert.True(t, dec("650").Equal(d.Cost), "cost %s", d.Cost)
	assert.True(t, dec("350").Equal(d.Profit), "profit %s", d.Profit)
	assert.Equal(t, int64(1), d.Count)
}

func TestDeltasFor_RevenueRefundLeg_Nets(t *testing.T) {
	// A debit against a revenue account reduces revenue, it is not cost.

	r := newTestRegistry()
	v := &ledger.Voucher{
		SourceType: ledger.SourceBooking,
		CompanyID:  "acme",
		Date:       jan15(),
		Debits: []ledger.Entry{
			{Account: "ar-acme", Amount: dec("900")},
			{Account: "rev-tickets", Amount: dec("100")},
		},
		Credits: []ledger.Entry{
			{Account: "rev-tickets", Amount: dec("1000")},
		},
	}

	d := r.DeltasFor(v)
	assert.True(t, dec("900").Equal(d.Revenue), "revenue %s", d.Revenue)
	assert.True(t, d.Cost.IsZero())
}

func TestDeltasFor_CountEligibility(t *testing.T) {
	r := newTestRegistry()

	for _, tc := range []struct {
		sourceType ledger.SourceType
		count      int64
	}{
		{ledger.SourceBooking, 1},
		{ledger.SourceVisa, 1},
		{ledger.SourceSubscription, 1},
		{ledger.SourceExpense, 0},
		{ledger.SourcePayment, 0},
		{ledger.SourceJournal, 0},
	} {
		v := &ledger.Voucher{
			SourceType: tc.sourceType,
			CompanyID:  "acme",
			Date:       jan15(),
			Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("10")}},
			Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("10")}},
		}
		assert.Equal(t, tc.count, r.DeltasFor(v).Count, "source type %s", tc.sourceType)
	}
}

// =============================================================================
// APPLY SEMANTICS
// =============================================================================

func TestApply_EmptyCompany_Skipped(t *testing.T) {
	// Vouchers without a company attribution never create aggregates.

	mem := store.NewMemory()
	agg := ledger.NewPeriodAggregator(newTestRegistry(), ledger.DefaultShards)
	ctx := context.Background()

	err := agg.Apply(ctx, mem, "", "2025-01", ledger.AggregateDelta{Revenue: dec("100")})
	require.NoError(t, err)

	shards, err := mem.ReadShards(ctx, ledger.CounterID("", "revenue", "2025-01"))
	require.NoError(t, err)
	assert.Empty(t, shards)
}

func TestApply_ZeroDelta_CreatesNoCounters(t *testing.T) {
	mem := store.NewMemory()
	agg := ledger.NewPeriodAggregator(newTestRegistry(), ledger.DefaultShards)

	err := agg.Apply(context.Background(), mem, "acme", "2025-01", ledger.AggregateDelta{})
	require.NoError(t, err)

	out, err := agg.Aggregate(context.Background(), mem, "acme", "2025-01")
	require.NoError(t, err)
	assert.True(t, out.Revenue.IsZero())
	assert.Equal(t, int64(0), out.Count)
}

// =============================================================================
// UPDATE OBSERVER - Month transition algorithm
// =============================================================================

func TestOnVoucherUpdated_SameBucket_SingleNetDelta(t *testing.T) {
	// GIVEN: A posted voucher contributing 1000 to January
	// WHEN: The observer sees an update to 800 within January
	// THEN: The stored delta is exactly -200, not -1000 then +800

	mem := store.NewMemory()
	registry := newTestRegistry()
	agg := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	ctx := context.Background()

	before := &ledger.Voucher{
		ID: "v1", SourceType: ledger.SourceBooking, CompanyID: "acme", Date: jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("1000")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("1000")}},
	}
	require.NoError(t, agg.OnVoucherCreated(ctx, mem, before))

	after := before.Clone()
	after.Debits = []ledger.Entry{{Account: "ar-acme", Amount: dec("800")}}
	after.Credits = []ledger.Entry{{Account: "rev-tickets", Amount: dec("800")}}
	require.NoError(t, agg.OnVoucherUpdated(ctx, mem, before, after))

	out, err := agg.Aggregate(ctx, mem, "acme", "2025-01")
	require.NoError(t, err)
	assert.True(t, dec("800").Equal(out.Revenue), "got %s", out.Revenue)
	assert.Equal(t, int64(1), out.Count, "same-bucket update must not touch the count")
}

func TestOnVoucherUpdated_CrossCompany_MovesBothBuckets(t *testing.T) {
	// A company reattribution subtracts from the old company's month and
	// adds to the new one, even when the month is unchanged.

	mem := store.NewMemory()
	registry := newTestRegistry()
	agg := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	ctx := context.Background()

	before := &ledger.Voucher{
		ID: "v2", SourceType: ledger.SourceBooking, CompanyID: "acme", Date: jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("400")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("400")}},
	}
	require.NoError(t, agg.OnVoucherCreated(ctx, mem, before))

	after := before.Clone()
	after.CompanyID = "globex"
	require.NoError(t, agg.OnVoucherUpdated(ctx, mem, before, after))

	acme, err := agg.Aggregate(ctx, mem, "acme", "2025-01")
	require.NoError(t, err)
	assert.True(t, acme.Revenue.IsZero())
	assert.Equal(t, int64(0), acme.Count)

	globex, err := agg.Aggregate(ctx, mem, "globex", "2025-01")
	require.NoError(t, err)
	assert.True(t, dec("400").Equal(globex.Revenue))
	assert.Equal(t, int64(1), globex.Count)
}

// =============================================================================
// DELETE / RESTORE OBSERVERS
// =============================================================================

func TestOnVoucherDeleted_ThenRestored_RoundTripsToSameTotals(t *testing.T) {
	mem := store.NewMemory()
	registry := newTestRegistry()
	agg := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	ctx := context.Background()

	v := &ledger.Voucher{
		ID: "v3", SourceType: ledger.SourceVisa, CompanyID: "acme", Date: jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("250")}},
		Credits: []ledger.Entry{{Account: "rev-visa", Amount: dec("250")}},
	}
	require.NoError(t, agg.OnVoucherCreated(ctx, mem, v))
	require.NoError(t, agg.OnVoucherDeleted(ctx, mem, v))

	out, err := agg.Aggregate(ctx, mem, "acme", "2025-01")
	require.NoError(t, err)
	assert.True(t, out.Revenue.IsZero(), "deleted voucher must not contribute, got %s", out.Revenue)
	assert.Equal(t, int64(0), out.Count)

	require.NoError(t, agg.OnVoucherRestored(ctx, mem, v))

	out, err = agg.Aggregate(ctx, mem, "acme", "2025-01")
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(out.Revenue))
	assert.Equal(t, int64(1), out.Count)
}

// =============================================================================
// DELTA ARITHMETIC
// =============================================================================

func TestAggregateDelta_SubAndNeg(t *testing.T) {
	a := ledger.AggregateDelta{Revenue: dec("100"), Cost: dec("40"), Profit: dec("60"), Count: 1}
	b := ledger.AggregateDelta{Revenue: dec("80"), Cost: dec("40"), Profit: dec("40"), Count: 1}

	net := a.Sub(b)
	assert.True(t, dec("20").Equal(net.Revenue))
	assert.True(t, net.Cost.IsZero())
	assert.True(t, dec("20").Equal(net.Profit))
	assert.Equal(t, int64(0), net.Count)

	neg := a.Neg()
	assert.True(t, dec("-100").Equal(neg.Revenue))
	assert.Equal(t, int64(-1), neg.Count)

	assert.True(t, a.Sub(a).IsZero())
	assert.False(t, a.IsZero())
	assert.True(t, ledger.AggregateDelta{Revenue: decimal.Zero}.IsZero())
}
