package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripledger/ledger-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func buildChart(t *testing.T, e *testEngine, b *ledger.ChartOfAccountsBuilder) map[string]*ledger.ChartNode {
	t.Helper()

	roots, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 4)

	nodes := make(map[string]*ledger.ChartNode)
	var walk func(n *ledger.ChartNode)
	walk = func(n *ledger.ChartNode) {
		nodes[n.ID] = n
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return nodes
}

// =============================================================================
// STRUCTURE
// =============================================================================

func TestChartBuild_FixedTaxonomy(t *testing.T) {
	// The four roots and four intermediates exist even on an empty ledger.

	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)

	nodes := buildChart(t, e, b)
	for _, id := range []string{
		"assets", "liabilities", "revenue", "expense",
		"receivables", "cash-and-bank", "payables", "clearing",
	} {
		assert.Contains(t, nodes, id)
	}
	assert.Equal(t, "1000", nodes["assets"].Code)
	assert.Equal(t, "1100", nodes["receivables"].Code)
}

func TestChartBuild_LeavesAttachByClass(t *testing.T) {
	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)

	nodes := buildChart(t, e, b)

	childIDs := func(n *ledger.ChartNode) []string {
		ids := make([]string, len(n.Children))
		for i, c := range n.Children {
			ids[i] = c.ID
		}
		return ids
	}

	assert.Contains(t, childIDs(nodes["receivables"]), "ar-acme")
	assert.Contains(t, childIDs(nodes["cash-and-bank"]), "bank-main")
	assert.Contains(t, childIDs(nodes["payables"]), "sup-iata")
	assert.Contains(t, childIDs(nodes["revenue"]), "rev-tickets")
	assert.Contains(t, childIDs(nodes["expense"]), "exp-supplier")
}

func TestChartBuild_ExplicitParentWins(t *testing.T) {
	// An account with a registered parent attaches under it, not under the
	// class intermediate.

	e := newTestEngine(t)
	e.registry.Register(ledger.Account{
		ID: "ar-acme-branch", Code: "1101-1", Name: "Acme branch receivable",
		Category: ledger.CategoryAsset, Class: ledger.ClassReceivable,
		Parent: "ar-acme", CompanyID: "acme",
	})
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)

	nodes := buildChart(t, e, b)
	parent := nodes["ar-acme"]
	require.NotNil(t, parent)
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "ar-acme-branch", parent.Children[0].ID)
}

// =============================================================================
// BALANCE FOLDING
// =============================================================================

func TestChartBuild_FoldsBalancesBottomUp(t *testing.T) {
	// GIVEN: A booking debiting a receivable and crediting revenue
	// WHEN: Building the chart
	// THEN: The leaf totals propagate through receivables up to assets

	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)

	postBooking(t, e, "bk-chart", dec("1000"), jan15())

	nodes := buildChart(t, e, b)

	assert.True(t, dec("1000").Equal(nodes["ar-acme"].Debit))
	assert.True(t, dec("1000").Equal(nodes["ar-acme"].TotalDebit))
	assert.True(t, dec("1000").Equal(nodes["receivables"].TotalDebit))
	assert.True(t, dec("1000").Equal(nodes["assets"].TotalDebit))
	assert.True(t, nodes["assets"].Debit.IsZero(), "roots carry no direct postings")

	assert.True(t, dec("1000").Equal(nodes["rev-tickets"].TotalCredit))
	assert.True(t, dec("1000").Equal(nodes["revenue"].TotalCredit))
}

func TestChartBuild_ExcludesSoftDeletedVouchers(t *testing.T) {
	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)
	ctx := context.Background()

	id := postBooking(t, e, "bk-gone", dec("500"), jan15())
	postBooking(t, e, "bk-here", dec("200"), jan15())
	require.NoError(t, e.lifecycle.SoftDelete(ctx, id, "ops", ""))

	nodes := buildChart(t, e, b)
	assert.True(t, dec("200").Equal(nodes["ar-acme"].TotalDebit),
		"got %s", nodes["ar-acme"].TotalDebit)
}

// =============================================================================
// MEMOIZATION
// =============================================================================

func TestChartBuild_MemoizedUntilInvalidated(t *testing.T) {
	// GIVEN: A built chart
	// WHEN: A voucher is posted through an engine that observes the builder
	// THEN: The next build reflects the new posting

	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)
	poster := ledger.NewJournalPoster(e.store, e.aggregator, b)
	ctx := context.Background()

	first := buildChart(t, e, b)
	assert.True(t, first["ar-acme"].TotalDebit.IsZero())

	// Repeated builds on an unchanged ledger return the same tree.
	again, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Same(t, first["assets"], again[0])

	_, err = poster.Post(ctx, ledger.PostParams{
		SourceType: ledger.SourceBooking,
		SourceID:   "bk-inval",
		CompanyID:  "acme",
		Currency:   "USD",
		Date:       jan15(),
		Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("300")}},
		Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("300")}},
	})
	require.NoError(t, err)

	rebuilt := buildChart(t, e, b)
	assert.True(t, dec("300").Equal(rebuilt["ar-acme"].TotalDebit))
}

func TestChartBuild_ConcurrentWithPosting(t *testing.T) {
	// GIVEN: A builder observed by the poster, so every posting invalidates
	//        the cache from inside an open store transaction
	// WHEN: Builds and postings race on the same store
	// THEN: Both sides finish; neither blocks on the other's locks

	e := newTestEngine(t)
	b := ledger.NewChartOfAccountsBuilder(e.store, e.registry)
	poster := ledger.NewJournalPoster(e.store, e.aggregator, b)
	ctx := context.Background()

	const posts = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < posts; i++ {
			_, err := poster.Post(ctx, ledger.PostParams{
				SourceType: ledger.SourceBooking,
				SourceID:   fmt.Sprintf("bk-race-%d", i),
				CompanyID:  "acme",
				Currency:   "USD",
				Date:       jan15(),
				Debits:     []ledger.Entry{{Account: "ar-acme", Amount: dec("10")}},
				Credits:    []ledger.Entry{{Account: "rev-tickets", Amount: dec("10")}},
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < posts; i++ {
			_, err := b.Build(ctx)
			assert.NoError(t, err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("chart build and voucher posting blocked on each other")
	}

	rebuilt := buildChart(t, e, b)
	assert.True(t, dec("500").Equal(rebuilt["ar-acme"].TotalDebit))
}
