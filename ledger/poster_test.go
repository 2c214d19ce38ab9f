package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripledger/ledger-engine/ledger"
)

// =============================================================================
// POSTING INVARIANT TESTS
// =============================================================================

func TestPost_BalancedVoucher_Succeeds(t *testing.T) {
	// GIVEN: A booking worth 1000
	// WHEN: Posting it
	// THEN: The voucher is stored balanced with its legs intact

	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-1", dec("1000"), jan15())

	v, err := e.store.GetVoucher(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.Balanced())
	assert.Equal(t, ledger.SourceBooking, v.SourceType)
	assert.True(t, dec("1000").Equal(v.DebitTotal()))
	assert.True(t, dec("1000").Equal(v.CreditTotal()))
}

func TestPost_UnbalancedVoucher_Rejected(t *testing.T) {
	// GIVEN: Debits and credits that differ by more than the epsilon
	// WHEN: Posting
	// THEN: Rejected with UnbalancedEntryError and nothing is stored

	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.poster.Post(ctx, ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-bad",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("1000")}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("999")}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnbalancedEntry)
	var ube *ledger.UnbalancedEntryError
	require.ErrorAs(t, err, &ube)
	assert.True(t, dec("1000").Equal(ube.Debit))
	assert.True(t, dec("999").Equal(ube.Credit))

	v, err := e.store.FindBySource(ctx, ledger.SourceBooking, "bk-bad")
	require.NoError(t, err)
	assert.Nil(t, v, "rejected voucher must not be stored")
}

func TestPost_SubEpsilonImbalance_Accepted(t *testing.T) {
	// Rounding residue below 0.001 is tolerated by the invariant.

	e := newTestEngine(t)

	_, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-round",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("100.0004")}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("100.0000")}},
	})
	assert.NoError(t, err)
}

func TestPost_NegativeAmount_Rejected(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-neg",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("-100")}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("-100")}},
	})
	assert.ErrorIs(t, err, ledger.ErrNegativeAmount)
}

func TestPost_EmptyVoucher_Rejected(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-empty",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
	})
	assert.ErrorIs(t, err, ledger.ErrEmptyVoucher)
}

func TestPost_MultiLeg_Balanced(t *testing.T) {
	// A distributed receipt: one debit split across several credits.

	e := newTestEngine(t)

	_, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceDistributedReceipt,
		SourceID:   "rcpt-7",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "bank-main", Amount: dec("900")}},
		Credits: []ledger.Entry{
			{Account: "ar-acme", Amount: dec("600")},
			{Account: "rev-visa", Amount: dec("300")},
		},
	})
	assert.NoError(t, err)
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestPost_SameSourceTwice_NoOpReturnsExistingID(t *testing.T) {
	// GIVEN: A booking already posted
	// WHEN: The same (source type, source id) is posted again
	// THEN: The existing voucher id comes back and aggregates count once

	e := newTestEngine(t)
	ctx := context.Background()

	first := postBooking(t, e, "bk-dup", dec("500"), jan15())
	second := postBooking(t, e, "bk-dup", dec("500"), jan15())
	assert.Equal(t, first, second)

	vouchers, err := e.store.ListVouchers(ctx, ledger.VoucherFilter{})
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, dec("500").Equal(agg.Revenue), "got %s", agg.Revenue)
	assert.Equal(t, int64(1), agg.Count)
}

func TestPost_SameSourceID_DifferentType_Distinct(t *testing.T) {
	// The idempotency key is the (type, id) pair, not the id alone.

	e := newTestEngine(t)
	ctx := context.Background()

	postBooking(t, e, "shared-1", dec("100"), jan15())
	_, err := e.poster.PostSimple(ctx, ledger.SourceVisa, "shared-1", "acme", "USD",
		jan15(), dec("50"), "ar-acme", "rev-visa", "")
	require.NoError(t, err)

	vouchers, err := e.store.ListVouchers(ctx, ledger.VoucherFilter{})
	require.NoError(t, err)
	assert.Len(t, vouchers, 2)
}

// =============================================================================
// AGGREGATE EFFECT OF POSTING
// =============================================================================

func TestPost_UpdatesMonthlyAggregates(t *testing.T) {
	// GIVEN: A booking with revenue and supplier cost legs
	// WHEN: Posted
	// THEN: Revenue, cost, profit and count land in the voucher's month

	e := newTestEngine(t)

	_, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-margin",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits: []ledger.Entry{
			{Account: "ar-acme", Amount: dec("1000")},
			{Account: "exp-supplier", Amount: dec("700")},
		},
		Credits: []ledger.Entry{
			{Account: "rev-tickets", Amount: dec("1000")},
			{Account: "sup-iata", Amount: dec("700")},
		},
	})
	require.NoError(t, err)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, dec("1000").Equal(agg.Revenue), "revenue %s", agg.Revenue)
	assert.True(t, dec("700").Equal(agg.Cost), "cost %s", agg.Cost)
	assert.True(t, dec("300").Equal(agg.Profit), "profit %s", agg.Profit)
	assert.Equal(t, int64(1), agg.Count)
}

func TestPost_ExpenseVoucher_NotCountEligible(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.poster.PostSimple(context.Background(), ledger.SourceExpense, "exp-1",
		"acme", "USD", jan15(), dec("80"), "exp-supplier", "bank-main", "office rent")
	require.NoError(t, err)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.Equal(t, int64(0), agg.Count, "expenses never contribute to the bookings count")
	assert.True(t, dec("80").Equal(agg.Cost))
}

func TestPost_WritesAuditTrail(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-audit", dec("100"), jan15())

	entries, err := e.store.ListAudit(ctx, ledger.AuditFilter{VoucherID: &id})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.AuditVoucherPosted, entries[0].Action)
	assert.Equal(t, "tester", entries[0].ActorID)
}

// =============================================================================
// AMENDMENT TESTS
// =============================================================================

func TestAmend_SameMonth_AppliesNetDelta(t *testing.T) {
	// GIVEN: A January booking worth 1000
	// WHEN: Amending the amount to 1200 within January
	// THEN: The month shows 1200, applied as one net +200 delta

	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-amend", dec("1000"), jan15())

	err := e.poster.Amend(ctx, id, ledger.AmendParams{
		Date:    jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("1200")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("1200")}},
		ActorID: "tester",
	})
	require.NoError(t, err)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, dec("1200").Equal(agg.Revenue), "got %s", agg.Revenue)
	assert.Equal(t, int64(1), agg.Count, "count must not change on a same-type amendment")
}

func TestAmend_CrossMonth_MovesContribution(t *testing.T) {
	// GIVEN: A January booking
	// WHEN: Amending its date into February
	// THEN: January returns to zero and February gains the full contribution

	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-move", dec("1000"), jan15())

	feb10 := time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)
	err := e.poster.Amend(ctx, id, ledger.AmendParams{
		Date:    feb10,
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("1000")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("1000")}},
		ActorID: "tester",
	})
	require.NoError(t, err)

	jan := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, jan.Revenue.IsZero(), "january revenue %s", jan.Revenue)
	assert.Equal(t, int64(0), jan.Count)

	feb := readAggregate(t, e, "acme", "2025-02")
	assert.True(t, dec("1000").Equal(feb.Revenue), "february revenue %s", feb.Revenue)
	assert.Equal(t, int64(1), feb.Count)
}

func TestAmend_UnbalancedReplacement_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-keep", dec("1000"), jan15())

	err := e.poster.Amend(ctx, id, ledger.AmendParams{
		Date:    jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("1200")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("1000")}},
	})
	assert.ErrorIs(t, err, ledger.ErrUnbalancedEntry)

	// Original voucher untouched.
	v, err := e.store.GetVoucher(ctx, id)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(v.DebitTotal()))
}

func TestAmend_MissingVoucher_NotFound(t *testing.T) {
	e := newTestEngine(t)

	err := e.poster.Amend(context.Background(), "no-such-id", ledger.AmendParams{
		Date:    jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("1")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("1")}},
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAmend_SoftDeletedVoucher_Rejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := postBooking(t, e, "bk-del", dec("100"), jan15())
	require.NoError(t, e.lifecycle.SoftDelete(ctx, id, "tester", "test"))

	err := e.poster.Amend(ctx, id, ledger.AmendParams{
		Date:    jan15(),
		Debits:  []ledger.Entry{{Account: "ar-acme", Amount: dec("100")}},
		Credits: []ledger.Entry{{Account: "rev-tickets", Amount: dec("100")}},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}
