/*
chart.go - Chart-of-accounts balance computation

PROCESS:
  Build initializes the fixed top-level taxonomy (assets / liabilities /
  revenue / expense), attaches the known sub-groupings (receivables,
  cash-and-bank, payables, clearing) as fixed intermediate nodes, attaches
  every registered account as a leaf under its correct parent, accumulates
  debit/credit per leaf from every non-deleted voucher, then folds sums
  bottom-up: a parent's totals are exactly the sum of its children's, never
  an independent accumulation.

STATE:
  The build is a pure function of the current voucher set; nothing here is
  a persisted source of truth, so a stale result can never drift further
  than the next rebuild. A memoized tree is kept for cheap repeated reads
  and invalidated on every voucher create/update/delete/restore via the
  observer hooks.

SEE ALSO:
  - registry.go: Leaf placement by category and class
  - hooks.go: Invalidation events
*/
package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// ChartNode is one node of the rebuilt chart tree. Own totals cover
// entries posted directly against the node's account; aggregate totals
// add all descendants.
type ChartNode struct {
	ID       string
	Code     string
	Name     string
	Category AccountCategory

	Debit  decimal.Decimal // own postings only
	Credit decimal.Decimal

	TotalDebit  decimal.Decimal // own + descendants
	TotalCredit decimal.Decimal

	Children []*ChartNode
}

// Fixed node ids for the taxonomy roots and intermediates.
const (
	chartAssets      = "assets"
	chartLiabilities = "liabilities"
	chartRevenue     = "revenue"
	chartExpense     = "expense"
	chartReceivables = "receivables"
	chartCashAndBank = "cash-and-bank"
	chartPayables    = "payables"
	chartClearing    = "clearing"
)

// ChartOfAccountsBuilder computes hierarchical balances on demand.
type ChartOfAccountsBuilder struct {
	store    VoucherStore
	registry *Registry

	mu     sync.Mutex
	gen    uint64 // bumped on every invalidation
	cached []*ChartNode
}

func NewChartOfAccountsBuilder(store VoucherStore, registry *Registry) *ChartOfAccountsBuilder {
	return &ChartOfAccountsBuilder{store: store, registry: registry}
}

// Build returns the chart roots in fixed order. Repeated calls with no
// intervening postings return the memoized tree.
//
// b.mu is never held across the store scan. Invalidate is called from
// observer hooks that run inside open store transactions, so holding the
// lock through ListVouchers would let a concurrent Build and a voucher
// write block on each other's locks. Build snapshots the generation,
// rebuilds unlocked, and only caches if no invalidation landed meanwhile.
func (b *ChartOfAccountsBuilder) Build(ctx context.Context) ([]*ChartNode, error) {
	b.mu.Lock()
	if b.cached != nil {
		tree := b.cached
		b.mu.Unlock()
		return tree, nil
	}
	gen := b.gen
	b.mu.Unlock()

	tree, err := b.build(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.gen == gen {
		b.cached = tree
	}
	b.mu.Unlock()
	return tree, nil
}

// Invalidate drops the memoized tree. Called from the observer hooks;
// must never wait on store locks.
func (b *ChartOfAccountsBuilder) Invalidate() {
	b.mu.Lock()
	b.gen++
	b.cached = nil
	b.mu.Unlock()
}

func (b *ChartOfAccountsBuilder) build(ctx context.Context) ([]*ChartNode, error) {
	assets := fixedNode(chartAssets, "1000", "Assets", CategoryAsset)
	liabilities := fixedNode(chartLiabilities, "2000", "Liabilities", CategoryLiability)
	revenue := fixedNode(chartRevenue, "3000", "Revenue", CategoryRevenue)
	expense := fixedNode(chartExpense, "4000", "Expense", CategoryExpense)

	receivables := fixedNode(chartReceivables, "1100", "Receivables", CategoryAsset)
	cashAndBank := fixedNode(chartCashAndBank, "1200", "Cash and Bank", CategoryAsset)
	payables := fixedNode(chartPayables, "2100", "Payables", CategoryLiability)
	clearing := fixedNode(chartClearing, "2200", "Clearing", CategoryLiability)

	assets.Children = append(assets.Children, receivables, cashAndBank)
	liabilities.Children = append(liabilities.Children, payables, clearing)

	// Attach every registered account as a leaf under its parent node.
	// Registry.Accounts is ordered by code, so rebuilds are deterministic.
	leaves := make(map[AccountID]*ChartNode)
	for _, a := range b.registry.Accounts() {
		leaf := &ChartNode{ID: string(a.ID), Code: a.Code, Name: a.Name, Category: a.Category}
		leaves[a.ID] = leaf

		parent := b.parentFor(a, map[string]*ChartNode{
			chartAssets:      assets,
			chartLiabilities: liabilities,
			chartRevenue:     revenue,
			chartExpense:     expense,
			chartReceivables: receivables,
			chartCashAndBank: cashAndBank,
			chartPayables:    payables,
			chartClearing:    clearing,
		}, leaves)
		parent.Children = append(parent.Children, leaf)
	}

	// Accumulate own totals from every non-deleted voucher.
	vouchers, err := b.store.ListVouchers(ctx, VoucherFilter{})
	if err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		for _, e := range v.Debits {
			if leaf, ok := leaves[e.Account]; ok {
				leaf.Debit = leaf.Debit.Add(e.Amount)
			}
		}
		for _, e := range v.Credits {
			if leaf, ok := leaves[e.Account]; ok {
				leaf.Credit = leaf.Credit.Add(e.Amount)
			}
		}
	}

	roots := []*ChartNode{assets, liabilities, revenue, expense}
	for _, root := range roots {
		fold(root)
	}
	return roots, nil
}

// parentFor picks the node an account attaches under: an explicit parent
// account if registered, otherwise the fixed intermediate for its class,
// otherwise the category root.
func (b *ChartOfAccountsBuilder) parentFor(a Account, fixed map[string]*ChartNode, leaves map[AccountID]*ChartNode) *ChartNode {
	if a.Parent != "" {
		if p, ok := leaves[a.Parent]; ok {
			return p
		}
	}
	switch a.Class {
	case ClassReceivable:
		return fixed[chartReceivables]
	case ClassCash:
		return fixed[chartCashAndBank]
	case ClassPayable:
		return fixed[chartPayables]
	case ClassClearing:
		return fixed[chartClearing]
	}
	switch a.Category {
	case CategoryAsset:
		return fixed[chartAssets]
	case CategoryLiability:
		return fixed[chartLiabilities]
	case CategoryRevenue:
		return fixed[chartRevenue]
	default:
		return fixed[chartExpense]
	}
}

// fold computes aggregate totals bottom-up. A parent's totals are the sum
// of its children's plus its own direct postings.
func fold(n *ChartNode) {
	n.TotalDebit = n.Debit
	n.TotalCredit = n.Credit
	for _, c := range n.Children {
		fold(c)
		n.TotalDebit = n.TotalDebit.Add(c.TotalDebit)
		n.TotalCredit = n.TotalCredit.Add(c.TotalCredit)
	}
}

func fixedNode(id, code, name string, cat AccountCategory) *ChartNode {
	return &ChartNode{ID: id, Code: code, Name: name, Category: cat}
}

// =============================================================================
// OBSERVER IMPLEMENTATION - Cache invalidation
// =============================================================================

func (b *ChartOfAccountsBuilder) OnVoucherCreated(context.Context, Store, *Voucher) error {
	b.Invalidate()
	return nil
}

func (b *ChartOfAccountsBuilder) OnVoucherUpdated(context.Context, Store, *Voucher, *Voucher) error {
	b.Invalidate()
	return nil
}

func (b *ChartOfAccountsBuilder) OnVoucherDeleted(context.Context, Store, *Voucher) error {
	b.Invalidate()
	return nil
}

func (b *ChartOfAccountsBuilder) OnVoucherRestored(context.Context, Store, *Voucher) error {
	b.Invalidate()
	return nil
}
