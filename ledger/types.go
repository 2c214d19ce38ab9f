/*
Package ledger provides the double-entry posting and aggregation engine.

PURPOSE:
  This package contains the core types and algorithms that turn travel-agency
  business events (bookings, visa sales, subscriptions, expenses, remittances)
  into balanced accounting vouchers, keep per-company monthly rollups
  consistent under concurrent writes, and detect/repair inconsistencies
  after the fact.

KEY CONCEPTS IN THIS FILE (types.go):
  - Voucher: One atomic, balanced accounting transaction
  - Entry: One leg of a voucher (debit or credit against one account)
  - SourceType: The business event that produced a voucher
  - AggregateDelta: The signed contribution a voucher makes to monthly rollups

DESIGN PRINCIPLES:
  1. Balance: sum(debits) == sum(credits) for every active voucher, within
     a fixed epsilon to tolerate rounding in upstream systems
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Idempotency: (SourceType, SourceID) is the natural key; retried
     business actions never produce duplicate vouchers
  4. Immutability: A posted voucher only changes via amendment, soft-delete
     flags, or an audited balance repair

SEE ALSO:
  - poster.go: Converts business events into vouchers
  - aggregate.go: Monthly rollup maintenance
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type VoucherID string
type AccountID string
type CompanyID string

// =============================================================================
// EPSILON - Balance tolerance
// =============================================================================

// Epsilon is the absolute tolerance for the ledger invariant
// |sum(debits) - sum(credits)| < Epsilon. Upstream systems round to three
// decimal places, so anything below 1e-3 is noise, not imbalance.
var Epsilon = decimal.NewFromFloat(0.001)

// =============================================================================
// SOURCE TYPE - Business event that produced a voucher
// =============================================================================

type SourceType string

const (
	SourceBooking            SourceType = "booking"
	SourceVisa               SourceType = "visa"
	SourceSubscription       SourceType = "subscription"
	SourceExpense            SourceType = "expense"
	SourcePayment            SourceType = "payment"
	SourceStandardReceipt    SourceType = "standard_receipt"
	SourceDistributedReceipt SourceType = "distributed_receipt"
	SourceJournal            SourceType = "journal"
	SourceRemittance         SourceType = "remittance"
	SourceSegment            SourceType = "segment"
)

// CountEligible reports whether vouchers of this source type contribute to
// the monthly bookings count. Only primary sales products count; receipts,
// expenses and internal journals do not.
func (s SourceType) CountEligible() bool {
	switch s {
	case SourceBooking, SourceVisa, SourceSubscription:
		return true
	default:
		return false
	}
}

// =============================================================================
// ACCOUNT - Chart-of-accounts node referenced by voucher legs
// =============================================================================

// AccountCategory is the top-level classification inherited from the root of
// the account tree. Every leaf belongs to exactly one category.
type AccountCategory string

const (
	CategoryAsset     AccountCategory = "asset"
	CategoryLiability AccountCategory = "liability"
	CategoryRevenue   AccountCategory = "revenue"
	CategoryExpense   AccountCategory = "expense"
)

// AccountClass is the functional sub-grouping used to attach a leaf under
// the correct intermediate chart node and to route aggregate deltas.
type AccountClass string

const (
	ClassReceivable AccountClass = "receivable"   // client balances (asset)
	ClassPayable    AccountClass = "payable"      // supplier balances (liability)
	ClassCash       AccountClass = "cash"         // boxes and bank accounts (asset)
	ClassClearing   AccountClass = "clearing"     // internal clearing (liability)
	ClassRevenue    AccountClass = "revenue"      // sales revenue
	ClassExpense    AccountClass = "expense"      // cost of sales, overheads
	ClassGeneral    AccountClass = "general"      // anything else
)

// Account is a resolved chart-of-accounts entry. Accounts form a tree via
// Parent; the registry guarantees category consistency down each branch.
type Account struct {
	ID        AccountID
	Code      string
	Name      string
	Category  AccountCategory
	Class     AccountClass
	Parent    AccountID // empty = attaches under a fixed intermediate node
	CompanyID CompanyID // set for client receivable accounts
}

// =============================================================================
// VOUCHER - The atomic accounting record
// =============================================================================

// Entry is a single leg of a voucher: an amount posted against one account.
// Amounts are always non-negative; the debit/credit side is determined by
// which list the entry belongs to.
type Entry struct {
	Account AccountID
	Amount  decimal.Decimal
	Note    string
}

// Voucher is one balanced set of ledger entries, persisted atomically.
//
// INVARIANT: sum(Debits) == sum(Credits) within Epsilon for every voucher
// that is not soft-deleted. A voucher is immutable once posted except for:
// amendment via JournalPoster.Amend, soft-delete/restore flags, and balance
// audit repairs (which preserve the invariant).
type Voucher struct {
	ID         VoucherID
	SourceType SourceType
	SourceID   string // idempotency key together with SourceType
	CompanyID  CompanyID
	Currency   string
	Date       time.Time
	Debits     []Entry
	Credits    []Entry

	CreatedBy string
	CreatedAt time.Time

	IsDeleted    bool
	DeletedAt    *time.Time
	DeletedBy    string
	DeleteReason string
}

// DebitTotal sums all debit legs.
func (v *Voucher) DebitTotal() decimal.Decimal {
	return sumEntries(v.Debits)
}

// CreditTotal sums all credit legs.
func (v *Voucher) CreditTotal() decimal.Decimal {
	return sumEntries(v.Credits)
}

// Imbalance returns sum(debits) - sum(credits).
func (v *Voucher) Imbalance() decimal.Decimal {
	return v.DebitTotal().Sub(v.CreditTotal())
}

// Balanced reports whether the ledger invariant holds for this voucher.
func (v *Voucher) Balanced() bool {
	return v.Imbalance().Abs().LessThan(Epsilon)
}

// Month returns the calendar month this voucher contributes to.
func (v *Voucher) Month() MonthID {
	return MonthOf(v.Date)
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (v *Voucher) Clone() *Voucher {
	cp := *v
	cp.Debits = append([]Entry(nil), v.Debits...)
	cp.Credits = append([]Entry(nil), v.Credits...)
	if v.DeletedAt != nil {
		t := *v.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func sumEntries(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// =============================================================================
// AGGREGATE DELTA - A voucher's signed contribution to monthly rollups
// =============================================================================

// AggregateDelta is the contribution one voucher makes to the per-company
// monthly rollup. Deltas are signed: posting adds the contribution,
// deleting subtracts it, amending applies the net difference.
type AggregateDelta struct {
	Revenue decimal.Decimal
	Cost    decimal.Decimal
	Profit  decimal.Decimal
	Count   int64
}

// IsZero reports whether applying this delta would be a no-op.
func (d AggregateDelta) IsZero() bool {
	return d.Revenue.IsZero() && d.Cost.IsZero() && d.Profit.IsZero() && d.Count == 0
}

// Neg returns the full negation, used when a voucher is deleted.
func (d AggregateDelta) Neg() AggregateDelta {
	return AggregateDelta{
		Revenue: d.Revenue.Neg(),
		Cost:    d.Cost.Neg(),
		Profit:  d.Profit.Neg(),
		Count:   -d.Count,
	}
}

// Sub returns d - o, the net delta between an old and new contribution.
func (d AggregateDelta) Sub(o AggregateDelta) AggregateDelta {
	return AggregateDelta{
		Revenue: d.Revenue.Sub(o.Revenue),
		Cost:    d.Cost.Sub(o.Cost),
		Profit:  d.Profit.Sub(o.Profit),
		Count:   d.Count - o.Count,
	}
}

// Aggregate is the externally visible monthly rollup for one company.
type Aggregate struct {
	CompanyID CompanyID
	MonthID   MonthID
	Revenue   decimal.Decimal
	Cost      decimal.Decimal
	Profit    decimal.Decimal
	Count     int64
}

// =============================================================================
// SOURCE RECORD - Business record checked by the completeness audit
// =============================================================================

// SourceRecord is the ledger-facing projection of a business record
// (booking, visa, subscription, expense, segment). The completeness audit
// compares these against posted vouchers and backfills any that are missing.
type SourceRecord struct {
	Type          SourceType
	ID            string
	CompanyID     CompanyID
	Currency      string
	Date          time.Time
	Amount        decimal.Decimal // headline amount; <= 0 records are skipped
	DebitAccount  AccountID
	CreditAccount AccountID
	Description   string
}
