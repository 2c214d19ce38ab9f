/*
store.go - Persistence interfaces for vouchers, counters and audit trails

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The engine assumes a store offering (a) atomic single-record increments
  for counter shards and (b) multi-record transactions with rollback.
  Different implementations use SQLite, MongoDB, or in-memory storage.

KEY INTERFACES:
  VoucherStore:    Voucher persistence and source-id lookup
  CounterStore:    Sharded counter shard increments/reads
  AuditLogStore:   Append-only operational audit trail
  DeletedLogStore: Mirror of soft-deleted vouchers for restore/purge
  SourceStore:     Business records checked by the completeness audit
  AccountStore:    Chart-of-accounts persistence
  TxStore:         Everything above plus WithTx for atomic operations

TRANSACTIONS:
  JournalPoster, PeriodAggregator deltas and lifecycle transitions each run
  inside one WithTx call. No operation spans two independently committed
  transactions, so there is never an observable state with a voucher but no
  corresponding aggregate delta, or vice versa.

  Sharded counter increments outside an engine operation need nothing more
  than the single-record atomic add; forcing every increment into a larger
  transaction would reintroduce the contention the sharding avoids.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory with snapshot rollback (testing/dev)
  - store/sqlite/sqlite.go: SQLite with WAL
  - store/mongo/mongo.go:   MongoDB with session transactions and $inc

SEE ALSO:
  - poster.go: The main transactional writer
  - counter.go: Sharded counter built on CounterStore
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VOUCHER STORE
// =============================================================================

// VoucherFilter narrows ListVouchers scans.
type VoucherFilter struct {
	IncludeDeleted bool
	SourceTypes    []SourceType
}

// VoucherStore persists vouchers. Get and FindBySource return (nil, nil)
// when no voucher matches; missing is not an error at this layer.
type VoucherStore interface {
	// InsertVoucher persists a new voucher. Returns ErrDuplicateSource if a
	// voucher already exists for (SourceType, SourceID).
	InsertVoucher(ctx context.Context, v *Voucher) error

	// GetVoucher loads a voucher by id, including soft-deleted ones.
	GetVoucher(ctx context.Context, id VoucherID) (*Voucher, error)

	// FindBySource looks a voucher up by its idempotency key.
	FindBySource(ctx context.Context, sourceType SourceType, sourceID string) (*Voucher, error)

	// UpdateVoucher replaces a stored voucher. Used for amendments,
	// soft-delete/restore flags and audit repairs only.
	UpdateVoucher(ctx context.Context, v *Voucher) error

	// DeleteVoucher physically removes a voucher. Purge only.
	DeleteVoucher(ctx context.Context, id VoucherID) error

	// ListVouchers scans vouchers matching the filter, ordered by date.
	ListVouchers(ctx context.Context, f VoucherFilter) ([]*Voucher, error)
}

// =============================================================================
// COUNTER STORE - Single-shard atomic increments
// =============================================================================

// CounterStore persists sharded counter state. IncrementShard must be
// atomic at the single-record level; that is the only concurrency guarantee
// the sharded counter needs.
type CounterStore interface {
	IncrementShard(ctx context.Context, counterID string, shard int, delta decimal.Decimal) error

	// ReadShards returns the current value of every shard of a counter.
	// Missing counters read as no shards, i.e. zero.
	ReadShards(ctx context.Context, counterID string) ([]decimal.Decimal, error)
}

// =============================================================================
// AUDIT LOG - Append-only, who did what when
// =============================================================================

type AuditAction string

const (
	AuditVoucherPosted     AuditAction = "voucher_posted"
	AuditVoucherAmended    AuditAction = "voucher_amended"
	AuditVoucherDeleted    AuditAction = "voucher_soft_deleted"
	AuditVoucherRestored   AuditAction = "voucher_restored"
	AuditVoucherPurged     AuditAction = "voucher_purged"
	AuditBalanceRepaired   AuditAction = "balance_repaired"
	AuditVoucherBackfilled AuditAction = "voucher_backfilled"
)

// AuditEntry records one engine action for the operational trail. This is
// separate from the ledger itself: it explains operations, not balances.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	VoucherID VoucherID
	Payload   map[string]string
}

type AuditFilter struct {
	VoucherID *VoucherID
	Actions   []AuditAction
}

type AuditLogStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// DELETED LOG - Recovery mirror for soft-deleted vouchers
// =============================================================================

// DeletedVoucher mirrors the full payload of a soft-deleted voucher so it
// can be restored even if the active document is later lost.
type DeletedVoucher struct {
	Voucher   Voucher
	DeletedAt time.Time
	DeletedBy string
	Reason    string
}

type DeletedLogStore interface {
	PutDeleted(ctx context.Context, rec DeletedVoucher) error
	GetDeleted(ctx context.Context, id VoucherID) (*DeletedVoucher, error)
	RemoveDeleted(ctx context.Context, id VoucherID) error
}

// =============================================================================
// SOURCE RECORDS + ACCOUNTS
// =============================================================================

type SourceStore interface {
	PutSourceRecord(ctx context.Context, rec SourceRecord) error
	ListSourceRecords(ctx context.Context, sourceType SourceType) ([]SourceRecord, error)
}

type AccountStore interface {
	SaveAccount(ctx context.Context, a Account) error
	ListAccounts(ctx context.Context) ([]Account, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is the full persistence surface the engine operates on.
type Store interface {
	VoucherStore
	CounterStore
	AuditLogStore
	DeletedLogStore
	SourceStore
	AccountStore
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a transactional view of the store. If fn
// returns an error the transaction is rolled back and no write is visible;
// otherwise all writes commit together. A timed-out context aborts the
// transaction, so a failed poster call leaves no partial voucher.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
