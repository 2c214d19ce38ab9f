package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tripledger/ledger-engine/ledger"
	"github.com/tripledger/ledger-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testEngine bundles the wired engine stack most tests need.
type testEngine struct {
	store      *store.Memory
	registry   *ledger.Registry
	aggregator *ledger.PeriodAggregator
	poster     *ledger.JournalPoster
	lifecycle  *ledger.VoucherLifecycleManager
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	mem := store.NewMemory()
	registry := newTestRegistry()
	aggregator := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	poster := ledger.NewJournalPoster(mem, aggregator)
	lifecycle := ledger.NewVoucherLifecycleManager(mem, aggregator)

	return &testEngine{
		store:      mem,
		registry:   registry,
		aggregator: aggregator,
		poster:     poster,
		lifecycle:  lifecycle,
	}
}

func newTestRegistry() *ledger.Registry {
	r := ledger.NewRegistry()
	r.Register(ledger.Account{ID: "ar-acme", Code: "1101", Name: "Acme Travel receivable",
		Category: ledger.CategoryAsset, Class: ledger.ClassReceivable, CompanyID: "acme"})
	r.Register(ledger.Account{ID: "bank-main", Code: "1201", Name: "Main bank account",
		Category: ledger.CategoryAsset, Class: ledger.ClassCash})
	r.Register(ledger.Account{ID: "rev-tickets", Code: "3001", Name: "Ticket revenue",
		Category: ledger.CategoryRevenue, Class: ledger.ClassRevenue})
	r.Register(ledger.Account{ID: "rev-visa", Code: "3002", Name: "Visa service revenue",
		Category: ledger.CategoryRevenue, Class: ledger.ClassRevenue})
	r.Register(ledger.Account{ID: "exp-supplier", Code: "4001", Name: "Supplier cost",
		Category: ledger.CategoryExpense, Class: ledger.ClassExpense})
	r.Register(ledger.Account{ID: "sup-iata", Code: "2101", Name: "IATA payable",
		Category: ledger.CategoryLiability, Class: ledger.ClassPayable})
	return r
}

func jan15() time.Time {
	return time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

// postBooking posts a standard sale: receivable against ticket revenue.
func postBooking(t *testing.T, e *testEngine, sourceID string, amount decimal.Decimal, date time.Time) ledger.VoucherID {
	t.Helper()

	id, err := e.poster.Post(context.Background(), ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   sourceID,
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       date,
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: amount}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: amount}},
		CreatedBy:  "tester",
	})
	require.NoError(t, err)
	return id
}

func readAggregate(t *testing.T, e *testEngine, company ledger.CompanyID, month ledger.MonthID) ledger.Aggregate {
	t.Helper()

	agg, err := e.aggregator.Aggregate(context.Background(), e.store, company, month)
	require.NoError(t, err)
	return agg
}
