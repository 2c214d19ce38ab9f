package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripledger/ledger-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAuditEngine(e *testEngine, policy ledger.AuditPolicy) *ledger.AuditEngine {
	return ledger.NewAuditEngine(e.store, e.poster, policy)
}

// insertUnbalanced plants a corrupted voucher directly in the store,
// bypassing the poster's validation. This models historical corruption.
func insertUnbalanced(t *testing.T, e *testEngine, id string, debit, credit string) {
	t.Helper()

	v := &ledger.Voucher{
		ID:         ledger.VoucherID(id),
		SourceType: ledger.SourceBooking,
		SourceID:   "src-" + id,
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec(debit)}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec(credit)}},
	}
	require.NoError(t, e.store.InsertVoucher(context.Background(), v))
}

// =============================================================================
// BALANCE AUDIT
// =============================================================================

func TestBalanceAudit_CleanLedger_NothingToDo(t *testing.T) {
	e := newTestEngine(t)

	postBooking(t, e, "bk-ok-1", dec("100"), jan15())
	postBooking(t, e, "bk-ok-2", dec("200"), jan15())

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).RunBalanceAudit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 0, report.Fixed)
	assert.Empty(t, report.Flagged)
}

func TestBalanceAudit_TwoLegImbalance_RepairedByAveraging(t *testing.T) {
	// GIVEN: A corrupted two-leg voucher with debit 110, credit 90
	// WHEN: Running the balance audit with auto-repair on
	// THEN: Both legs become (110+90)/2 = 100 and the repair is logged

	e := newTestEngine(t)
	ctx := context.Background()

	insertUnbalanced(t, e, "v-skew", "110", "90")

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	assert.Empty(t, report.Flagged)

	v, err := e.store.GetVoucher(ctx, "v-skew")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(v.Debits[0].Amount), "got %s", v.Debits[0].Amount)
	assert.True(t, dec("100").Equal(v.Credits[0].Amount))
	assert.True(t, v.Balanced())
	assert.Contains(t, v.Debits[0].Note, "repaired imbalance")

	id := ledger.VoucherID("v-skew")
	entries, err := e.store.ListAudit(ctx, ledger.AuditFilter{
		VoucherID: &id,
		Actions:   []ledger.AuditAction{ledger.AuditBalanceRepaired},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "110", entries[0].Payload["original_debit"])
	assert.Equal(t, "90", entries[0].Payload["original_credit"])
}

func TestBalanceAudit_RepairUpdatesAggregates(t *testing.T) {
	// The repaired amount must flow through the same observers as a normal
	// amendment, so the monthly revenue reflects the corrected value.

	e := newTestEngine(t)
	ctx := context.Background()

	insertUnbalanced(t, e, "v-agg", "110", "90")
	// Simulate the original (corrupt) contribution having been aggregated.
	v, err := e.store.GetVoucher(ctx, "v-agg")
	require.NoError(t, err)
	require.NoError(t, e.aggregator.OnVoucherCreated(ctx, e.store, v))

	_, err = newAuditEngine(e, ledger.DefaultAuditPolicy()).RunBalanceAudit(ctx)
	require.NoError(t, err)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, dec("100").Equal(agg.Revenue), "got %s", agg.Revenue)
}

func TestBalanceAudit_MultiLegImbalance_Flagged(t *testing.T) {
	// More than two legs: the audit cannot tell which leg is wrong.

	e := newTestEngine(t)
	ctx := context.Background()

	v := &ledger.Voucher{
		ID:         "v-multi",
		SourceType: ledger.SourceDistributedReceipt,
		SourceID:   "src-multi",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "bank-main", Amount: dec("100")}},
		Credits: []ledger.Entry{
			{Account: "ar-acme", Amount: dec("60")},
			{Account: "rev-visa", Amount: dec("30")},
		},
	}
	require.NoError(t, e.store.InsertVoucher(ctx, v))

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fixed)
	require.Len(t, report.Flagged, 1)
	assert.Equal(t, ledger.VoucherID("v-multi"), report.Flagged[0].VoucherID)
	assert.Equal(t, 3, report.Flagged[0].Legs)

	// The voucher itself is untouched.
	got, err := e.store.GetVoucher(ctx, "v-multi")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(got.Debits[0].Amount))
}

func TestBalanceAudit_RepairDisabledByPolicy_Flagged(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	insertUnbalanced(t, e, "v-policy", "110", "90")

	report, err := newAuditEngine(e, ledger.AuditPolicy{AutoRepairTwoLeg: false}).RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fixed)
	require.Len(t, report.Flagged, 1)
	assert.Equal(t, "auto-repair disabled by policy", report.Flagged[0].Reason)

	v, err := e.store.GetVoucher(ctx, "v-policy")
	require.NoError(t, err)
	assert.True(t, dec("110").Equal(v.Debits[0].Amount), "voucher must be untouched")
}

func TestBalanceAudit_Rerun_IsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	insertUnbalanced(t, e, "v-rerun", "110", "90")
	engine := newAuditEngine(e, ledger.DefaultAuditPolicy())

	first, err := engine.RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Fixed)

	second, err := engine.RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fixed, "a repaired voucher is balanced on the next run")
	assert.Empty(t, second.Flagged)
}

func TestBalanceAudit_SkipsSoftDeletedVouchers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	insertUnbalanced(t, e, "v-deleted", "110", "90")
	v, err := e.store.GetVoucher(ctx, "v-deleted")
	require.NoError(t, err)
	deleted := v.Clone()
	deleted.IsDeleted = true
	require.NoError(t, e.store.UpdateVoucher(ctx, deleted))

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).RunBalanceAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

// =============================================================================
// COMPLETENESS AUDIT
// =============================================================================

func TestCompletenessAudit_BackfillsMissingVouchers(t *testing.T) {
	// GIVEN: Two booking records, one already posted
	// WHEN: Running the completeness audit
	// THEN: Exactly the missing one is synthesized, via the normal poster

	e := newTestEngine(t)
	ctx := context.Background()

	postBooking(t, e, "bk-posted", dec("100"), jan15())
	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceBooking, ID: "bk-posted", CompanyID: "acme", Currency: "USD",
		Date: jan15(), Amount: dec("100"),
		DebitAccount: "ar-acme", CreditAccount: "rev-tickets",
	}))
	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceBooking, ID: "bk-missing", CompanyID: "acme", Currency: "USD",
		Date: jan15(), Amount: dec("250"),
		DebitAccount: "ar-acme", CreditAccount: "rev-tickets",
		Description: "september group booking",
	}))

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).
		RunCompletenessAudit(ctx, []ledger.SourceType{ledger.SourceBooking})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Created)

	v, err := e.store.FindBySource(ctx, ledger.SourceBooking, "bk-missing")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.Balanced())
	assert.Equal(t, "audit-engine", v.CreatedBy)

	// The backfill counts in the aggregates like any other booking.
	agg := readAggregate(t, e, "acme", "2025-01")
	assert.True(t, dec("350").Equal(agg.Revenue), "got %s", agg.Revenue)
	assert.Equal(t, int64(2), agg.Count)
}

func TestCompletenessAudit_SkipsNonPositiveAmounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceBooking, ID: "bk-zero", CompanyID: "acme",
		Date: jan15(), Amount: dec("0"),
		DebitAccount: "ar-acme", CreditAccount: "rev-tickets",
	}))
	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceBooking, ID: "bk-negative", CompanyID: "acme",
		Date: jan15(), Amount: dec("-50"),
		DebitAccount: "ar-acme", CreditAccount: "rev-tickets",
	}))

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).
		RunCompletenessAudit(ctx, []ledger.SourceType{ledger.SourceBooking})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.Equal(t, 0, report.Created)
}

func TestCompletenessAudit_Rerun_CreatesNoDuplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceVisa, ID: "visa-9", CompanyID: "acme", Currency: "USD",
		Date: jan15(), Amount: dec("80"),
		DebitAccount: "ar-acme", CreditAccount: "rev-visa",
	}))
	engine := newAuditEngine(e, ledger.DefaultAuditPolicy())

	first, err := engine.RunCompletenessAudit(ctx, []ledger.SourceType{ledger.SourceVisa})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := engine.RunCompletenessAudit(ctx, []ledger.SourceType{ledger.SourceVisa})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)

	vouchers, err := e.store.ListVouchers(ctx, ledger.VoucherFilter{
		SourceTypes: []ledger.SourceType{ledger.SourceVisa},
	})
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)

	agg := readAggregate(t, e, "acme", "2025-01")
	assert.Equal(t, int64(1), agg.Count, "re-run must not double-count")
}

func TestCompletenessAudit_DefaultScansAllVoucherProducingTypes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.store.PutSourceRecord(ctx, ledger.SourceRecord{
		Type: ledger.SourceExpense, ID: "exp-5", CompanyID: "acme", Currency: "USD",
		Date: jan15(), Amount: dec("40"),
		DebitAccount: "exp-supplier", CreditAccount: "bank-main",
	}))

	report, err := newAuditEngine(e, ledger.DefaultAuditPolicy()).RunCompletenessAudit(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}
