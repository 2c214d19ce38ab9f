/*
Package sqlite provides a SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. The same patterns carry to
  PostgreSQL with minor dialect changes.

KEY TABLES:
  vouchers:         One row per voucher, legs embedded as JSON. The unique
                    (source_type, source_id) index is the idempotency key.
  counter_shards:   One row per (counter, shard); increments are a single
                    upsert with `value = value + delta`, the atomic
                    single-record add the sharded counter requires.
  deleted_vouchers: Full-payload mirror of soft-deleted vouchers.
  audit_log:        Append-only operational trail.
  source_records:   Business records for the completeness audit.
  accounts:         Chart-of-accounts configuration.

TRANSACTIONS:
  WithTx opens one database/sql transaction and hands the engine a view
  bound to it. SQLite serializes writers, so check-then-insert inside a
  transaction is race-free.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tripledger/ledger-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and suits
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	s := &Store{queries: &queries{db: busyExecer{db}}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		date TEXT NOT NULL,
		debits_json TEXT NOT NULL,
		credits_json TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT,
		deleted_by TEXT NOT NULL DEFAULT '',
		delete_reason TEXT NOT NULL DEFAULT ''
	);

	-- Idempotency key: one voucher per business record.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_vouchers_source
		ON vouchers(source_type, source_id);
	CREATE INDEX IF NOT EXISTS idx_vouchers_date
		ON vouchers(date);
	CREATE INDEX IF NOT EXISTS idx_vouchers_company
		ON vouchers(company_id);

	CREATE TABLE IF NOT EXISTS counter_shards (
		counter_id TEXT NOT NULL,
		shard INTEGER NOT NULL,
		value REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (counter_id, shard)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		voucher_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_voucher
		ON audit_log(voucher_id);

	CREATE TABLE IF NOT EXISTS deleted_vouchers (
		voucher_id TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		deleted_by TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS source_records (
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		debit_account TEXT NOT NULL,
		credit_account TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (source_type, source_id)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		class TEXT NOT NULL DEFAULT 'general',
		parent_id TEXT NOT NULL DEFAULT '',
		company_id TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ledger.ErrStoreUnavailable, err)
	}
	if err := fn(&queries{db: busyExecer{tx}}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// =============================================================================
// QUERIES - Shared between the root store and transaction views
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db execer
}

// busyExecer wraps statement execution so transient SQLITE_BUSY and
// SQLITE_LOCKED failures surface as ledger.ErrStoreUnavailable and
// ledger.IsRetryable fires for callers.
type busyExecer struct {
	db execer
}

func (b busyExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	return res, wrapBusy(err)
}

func (b busyExecer) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	return rows, wrapBusy(err)
}

func (b busyExecer) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	// Row errors surface at Scan time; scan sites wrap those themselves.
	return b.db.QueryRowContext(ctx, query, args...)
}

func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return err
}

// ---- vouchers ----

type entryJSON struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Note    string `json:"note,omitempty"`
}

func encodeEntries(entries []ledger.Entry) (string, error) {
	b, err := json.Marshal(entriesToJSON(entries))
	return string(b), err
}

func decodeEntries(s string) ([]ledger.Entry, error) {
	var raw []entryJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return entriesFromJSON(raw)
}

func (q *queries) InsertVoucher(ctx context.Context, v *ledger.Voucher) error {
	existing, err := q.FindBySource(ctx, v.SourceType, v.SourceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ledger.ErrDuplicateSource
	}

	debits, err := encodeEntries(v.Debits)
	if err != nil {
		return err
	}
	credits, err := encodeEntries(v.Credits)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO vouchers
			(id, source_type, source_id, company_id, currency, date,
			 debits_json, credits_json, created_by, created_at,
			 is_deleted, deleted_at, deleted_by, delete_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(v.ID), string(v.SourceType), v.SourceID, string(v.CompanyID),
		v.Currency, v.Date.UTC().Format(time.RFC3339),
		debits, credits, v.CreatedBy, v.CreatedAt.UTC().Format(time.RFC3339),
		boolToInt(v.IsDeleted), nullableTime(v.DeletedAt), v.DeletedBy, v.DeleteReason)
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

const voucherColumns = `id, source_type, source_id, company_id, currency, date,
	debits_json, credits_json, created_by, created_at,
	is_deleted, deleted_at, deleted_by, delete_reason`

func (q *queries) GetVoucher(ctx context.Context, id ledger.VoucherID) (*ledger.Voucher, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`, string(id))
	return scanVoucher(row)
}

func (q *queries) FindBySource(ctx context.Context, st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE source_type = ? AND source_id = ?`,
		string(st), sourceID)
	return scanVoucher(row)
}

func (q *queries) UpdateVoucher(ctx context.Context, v *ledger.Voucher) error {
	debits, err := encodeEntries(v.Debits)
	if err != nil {
		return err
	}
	credits, err := encodeEntries(v.Credits)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE vouchers SET
			date = ?, debits_json = ?, credits_json = ?,
			is_deleted = ?, deleted_at = ?, deleted_by = ?, delete_reason = ?
		WHERE id = ?`,
		v.Date.UTC().Format(time.RFC3339), debits, credits,
		boolToInt(v.IsDeleted), nullableTime(v.DeletedAt), v.DeletedBy, v.DeleteReason,
		string(v.ID))
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteVoucher(ctx context.Context, id ledger.VoucherID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM vouchers WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (q *queries) ListVouchers(ctx context.Context, f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers`
	var args []any
	var where []string
	if !f.IncludeDeleted {
		where = append(where, `is_deleted = 0`)
	}
	if len(f.SourceTypes) > 0 {
		placeholders := ""
		for i, st := range f.SourceTypes {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, string(st))
		}
		where = append(where, `source_type IN (`+placeholders+`)`)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY date, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner) (*ledger.Voucher, error) {
	var (
		v                  ledger.Voucher
		id, st, company    string
		dateStr, createdAt string
		debits, credits    string
		isDeleted          int
		deletedAt          sql.NullString
	)
	err := row.Scan(&id, &st, &v.SourceID, &company, &v.Currency, &dateStr,
		&debits, &credits, &v.CreatedBy, &createdAt,
		&isDeleted, &deletedAt, &v.DeletedBy, &v.DeleteReason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan voucher: %w", wrapBusy(err))
	}

	v.ID = ledger.VoucherID(id)
	v.SourceType = ledger.SourceType(st)
	v.CompanyID = ledger.CompanyID(company)
	v.IsDeleted = isDeleted != 0
	if v.Date, err = time.Parse(time.RFC3339, dateStr); err != nil {
		return nil, fmt.Errorf("parse voucher date: %w", err)
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse voucher created_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse voucher deleted_at: %w", err)
		}
		v.DeletedAt = &t
	}
	if v.Debits, err = decodeEntries(debits); err != nil {
		return nil, err
	}
	if v.Credits, err = decodeEntries(credits); err != nil {
		return nil, err
	}
	return &v, nil
}

// ---- counters ----

// IncrementShard is a single-row atomic upsert. Shard values are stored as
// REAL: rollups tolerate sub-epsilon float drift, while voucher amounts
// stay exact decimal text.
func (q *queries) IncrementShard(ctx context.Context, counterID string, shard int, delta decimal.Decimal) error {
	f, _ := delta.Float64()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO counter_shards (counter_id, shard, value) VALUES (?, ?, ?)
		ON CONFLICT(counter_id, shard) DO UPDATE SET value = value + excluded.value`,
		counterID, shard, f)
	if err != nil {
		return fmt.Errorf("increment shard: %w", err)
	}
	return nil
}

func (q *queries) ReadShards(ctx context.Context, counterID string) ([]decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT value FROM counter_shards WHERE counter_id = ?`, counterID)
	if err != nil {
		return nil, fmt.Errorf("read shards: %w", err)
	}
	defer rows.Close()

	var out []decimal.Decimal
	for rows.Next() {
		var f float64
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, decimal.NewFromFloat(f))
	}
	return out, rows.Err()
}

// ---- audit log ----

func (q *queries) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, voucher_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339), e.ActorID,
		string(e.Action), string(e.VoucherID), string(payload))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (q *queries) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query := `SELECT id, timestamp, actor_id, action, voucher_id, payload_json FROM audit_log`
	var args []any
	if f.VoucherID != nil {
		query += ` WHERE voucher_id = ?`
		args = append(args, string(*f.VoucherID))
	}
	query += ` ORDER BY timestamp, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e         ledger.AuditEntry
			ts        string
			action    string
			voucherID string
			payload   sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &voucherID, &payload); err != nil {
			return nil, err
		}
		e.Action = ledger.AuditAction(action)
		e.VoucherID = ledger.VoucherID(voucherID)
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, err
			}
		}
		if len(f.Actions) > 0 && !actionIn(f.Actions, e.Action) {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func actionIn(actions []ledger.AuditAction, a ledger.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// ---- deleted log ----

func (q *queries) PutDeleted(ctx context.Context, rec ledger.DeletedVoucher) error {
	payload, err := json.Marshal(voucherToJSON(&rec.Voucher))
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO deleted_vouchers (voucher_id, payload_json, deleted_at, deleted_by, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(voucher_id) DO UPDATE SET
			payload_json = excluded.payload_json,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by,
			reason = excluded.reason`,
		string(rec.Voucher.ID), string(payload),
		rec.DeletedAt.UTC().Format(time.RFC3339), rec.DeletedBy, rec.Reason)
	if err != nil {
		return fmt.Errorf("put deleted: %w", err)
	}
	return nil
}

func (q *queries) GetDeleted(ctx context.Context, id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT payload_json, deleted_at, deleted_by, reason
		FROM deleted_vouchers WHERE voucher_id = ?`, string(id))

	var payload, deletedAt string
	rec := ledger.DeletedVoucher{}
	err := row.Scan(&payload, &deletedAt, &rec.DeletedBy, &rec.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deleted: %w", wrapBusy(err))
	}
	var vj voucherJSON
	if err := json.Unmarshal([]byte(payload), &vj); err != nil {
		return nil, err
	}
	v, err := voucherFromJSON(vj)
	if err != nil {
		return nil, err
	}
	rec.Voucher = *v
	if rec.DeletedAt, err = time.Parse(time.RFC3339, deletedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (q *queries) RemoveDeleted(ctx context.Context, id ledger.VoucherID) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM deleted_vouchers WHERE voucher_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("remove deleted: %w", err)
	}
	return nil
}

// ---- source records ----

func (q *queries) PutSourceRecord(ctx context.Context, rec ledger.SourceRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO source_records
			(source_type, source_id, company_id, currency, date, amount,
			 debit_account, credit_account, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id) DO UPDATE SET
			company_id = excluded.company_id,
			currency = excluded.currency,
			date = excluded.date,
			amount = excluded.amount,
			debit_account = excluded.debit_account,
			credit_account = excluded.credit_account,
			description = excluded.description`,
		string(rec.Type), rec.ID, string(rec.CompanyID), rec.Currency,
		rec.Date.UTC().Format(time.RFC3339), rec.Amount.String(),
		string(rec.DebitAccount), string(rec.CreditAccount), rec.Description)
	if err != nil {
		return fmt.Errorf("put source record: %w", err)
	}
	return nil
}

func (q *queries) ListSourceRecords(ctx context.Context, st ledger.SourceType) ([]ledger.SourceRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT source_type, source_id, company_id, currency, date, amount,
		       debit_account, credit_account, description
		FROM source_records WHERE source_type = ? ORDER BY source_id`, string(st))
	if err != nil {
		return nil, fmt.Errorf("list source records: %w", err)
	}
	defer rows.Close()

	var out []ledger.SourceRecord
	for rows.Next() {
		var (
			rec                        ledger.SourceRecord
			typ, company, dateStr, amt string
			debit, credit              string
		)
		if err := rows.Scan(&typ, &rec.ID, &company, &rec.Currency, &dateStr, &amt,
			&debit, &credit, &rec.Description); err != nil {
			return nil, err
		}
		rec.Type = ledger.SourceType(typ)
		rec.CompanyID = ledger.CompanyID(company)
		rec.DebitAccount = ledger.AccountID(debit)
		rec.CreditAccount = ledger.AccountID(credit)
		if rec.Date, err = time.Parse(time.RFC3339, dateStr); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---- accounts ----

func (q *queries) SaveAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (id, code, name, category, class, parent_id, company_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category,
			class = excluded.class,
			parent_id = excluded.parent_id,
			company_id = excluded.company_id`,
		string(a.ID), a.Code, a.Name, string(a.Category), string(a.Class),
		string(a.Parent), string(a.CompanyID))
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, code, name, category, class, parent_id, company_id
		FROM accounts ORDER BY code, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var id, category, class, parent, company string
		if err := rows.Scan(&id, &a.Code, &a.Name, &category, &class, &parent, &company); err != nil {
			return nil, err
		}
		a.ID = ledger.AccountID(id)
		a.Category = ledger.AccountCategory(category)
		a.Class = ledger.AccountClass(class)
		a.Parent = ledger.AccountID(parent)
		a.CompanyID = ledger.CompanyID(company)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// JSON payload mapping for the deleted-voucher mirror
// =============================================================================

type voucherJSON struct {
	ID           string      `json:"id"`
	SourceType   string      `json:"source_type"`
	SourceID     string      `json:"source_id"`
	CompanyID    string      `json:"company_id"`
	Currency     string      `json:"currency"`
	Date         time.Time   `json:"date"`
	Debits       []entryJSON `json:"debits"`
	Credits      []entryJSON `json:"credits"`
	CreatedBy    string      `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	IsDeleted    bool        `json:"is_deleted"`
	DeletedAt    *time.Time  `json:"deleted_at,omitempty"`
	DeletedBy    string      `json:"deleted_by,omitempty"`
	DeleteReason string      `json:"delete_reason,omitempty"`
}

func voucherToJSON(v *ledger.Voucher) voucherJSON {
	return voucherJSON{
		ID:           string(v.ID),
		SourceType:   string(v.SourceType),
		SourceID:     v.SourceID,
		CompanyID:    string(v.CompanyID),
		Currency:     v.Currency,
		Date:         v.Date,
		Debits:       entriesToJSON(v.Debits),
		Credits:      entriesToJSON(v.Credits),
		CreatedBy:    v.CreatedBy,
		CreatedAt:    v.CreatedAt,
		IsDeleted:    v.IsDeleted,
		DeletedAt:    v.DeletedAt,
		DeletedBy:    v.DeletedBy,
		DeleteReason: v.DeleteReason,
	}
}

func voucherFromJSON(vj voucherJSON) (*ledger.Voucher, error) {
	debits, err := entriesFromJSON(vj.Debits)
	if err != nil {
		return nil, err
	}
	credits, err := entriesFromJSON(vj.Credits)
	if err != nil {
		return nil, err
	}
	return &ledger.Voucher{
		ID:           ledger.VoucherID(vj.ID),
		SourceType:   ledger.SourceType(vj.SourceType),
		SourceID:     vj.SourceID,
		CompanyID:    ledger.CompanyID(vj.CompanyID),
		Currency:     vj.Currency,
		Date:         vj.Date,
		Debits:       debits,
		Credits:      credits,
		CreatedBy:    vj.CreatedBy,
		CreatedAt:    vj.CreatedAt,
		IsDeleted:    vj.IsDeleted,
		DeletedAt:    vj.DeletedAt,
		DeletedBy:    vj.DeletedBy,
		DeleteReason: vj.DeleteReason,
	}, nil
}

func entriesToJSON(entries []ledger.Entry) []entryJSON {
	out := make([]entryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryJSON{Account: string(e.Account), Amount: e.Amount.String(), Note: e.Note}
	}
	return out
}

func entriesFromJSON(raw []entryJSON) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, len(raw))
	for i, e := range raw {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", e.Amount, err)
		}
		out[i] = ledger.Entry{Account: ledger.AccountID(e.Account), Amount: amount, Note: e.Note}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
