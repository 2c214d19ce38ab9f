/*
registry.go - Account resolution and category classification

PURPOSE:
  Resolves a logical account reference (client, supplier, cash box, revenue
  or expense category, internal clearing account) to a stable account and
  its typed category. Pure lookup: the registry owns no state beyond its
  configured accounts.

  Category classification replaces the original system's string comparisons
  against settings maps with a typed AccountCategory resolved once and
  cached per account id.

SEE ALSO:
  - poster.go: Uses DeltasFor to route aggregate contributions
  - chart.go: Walks the registry to lay out the chart of accounts
*/
package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry resolves account ids to accounts and categories. Safe for
// concurrent use; registration is expected at startup or through the
// account-management surface, lookups on every post.
type Registry struct {
	mu       sync.RWMutex
	accounts map[AccountID]Account
}

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[AccountID]Account)}
}

// LoadRegistry builds a registry from the accounts persisted in the store.
func LoadRegistry(ctx context.Context, store AccountStore) (*Registry, error) {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, a := range accounts {
		r.Register(a)
	}
	return r, nil
}

// Register adds or replaces an account.
func (r *Registry) Register(a Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
}

// Resolve returns the account for an id. ok is false for unknown accounts;
// unknown accounts still post to the ledger but contribute zero to
// aggregates and do not appear in the chart of accounts.
func (r *Registry) Resolve(id AccountID) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// CategoryOf returns the account's category, or ok=false if unknown.
func (r *Registry) CategoryOf(id AccountID) (AccountCategory, bool) {
	a, ok := r.Resolve(id)
	return a.Category, ok
}

// Accounts returns all registered accounts ordered by code then id, so
// chart builds are deterministic.
func (r *Registry) Accounts() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// DELTA DERIVATION - What a voucher contributes to monthly rollups
// =============================================================================

// DeltasFor computes the aggregate contribution implied by a voucher's
// legs. Revenue is credits minus debits against revenue accounts; cost is
// debits minus credits against expense accounts; profit is their
// difference. Count is 1 for count-eligible source types. Accounts the
// registry cannot resolve contribute zero.
func (r *Registry) DeltasFor(v *Voucher) AggregateDelta {
	revenue := decimal.Zero
	cost := decimal.Zero

	for _, e := range v.Debits {
		switch cat, _ := r.CategoryOf(e.Account); cat {
		case CategoryRevenue:
			revenue = revenue.Sub(e.Amount)
		case CategoryExpense:
			cost = cost.Add(e.Amount)
		}
	}
	for _, e := range v.Credits {
		switch cat, _ := r.CategoryOf(e.Account); cat {
		case CategoryRevenue:
			revenue = revenue.Add(e.Amount)
		case CategoryExpense:
			cost = cost.Sub(e.Amount)
		}
	}

	d := AggregateDelta{
		Revenue: revenue,
		Cost:    cost,
		Profit:  revenue.Sub(cost),
	}
	if v.SourceType.CountEligible() {
		d.Count = 1
	}
	return d
}
