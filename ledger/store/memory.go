/*
Package store provides Store implementations.

The Memory store backs tests and local development. Transactions are
simulated with a full snapshot taken before the callback and restored on
error, which gives the same all-or-nothing semantics the engine gets from
SQLite transactions or MongoDB sessions.
*/
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tripledger/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type sourceKey struct {
	Type ledger.SourceType
	ID   string
}

type Memory struct {
	mu sync.RWMutex

	vouchers  map[ledger.VoucherID]*ledger.Voucher
	sourceIdx map[sourceKey]ledger.VoucherID
	counters  map[string]map[int]decimal.Decimal
	audit     []ledger.AuditEntry
	deleted   map[ledger.VoucherID]ledger.DeletedVoucher
	sources   map[ledger.SourceType]map[string]ledger.SourceRecord
	accounts  map[ledger.AccountID]ledger.Account
}

func NewMemory() *Memory {
	return &Memory{
		vouchers:  make(map[ledger.VoucherID]*ledger.Voucher),
		sourceIdx: make(map[sourceKey]ledger.VoucherID),
		counters:  make(map[string]map[int]decimal.Decimal),
		deleted:   make(map[ledger.VoucherID]ledger.DeletedVoucher),
		sources:   make(map[ledger.SourceType]map[string]ledger.SourceRecord),
		accounts:  make(map[ledger.AccountID]ledger.Account),
	}
}

// =============================================================================
// VOUCHERS
// =============================================================================

func (m *Memory) InsertVoucher(_ context.Context, v *ledger.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertVoucherLocked(v)
}

func (m *Memory) insertVoucherLocked(v *ledger.Voucher) error {
	k := sourceKey{Type: v.SourceType, ID: v.SourceID}
	if _, exists := m.sourceIdx[k]; exists {
		return ledger.ErrDuplicateSource
	}
	m.vouchers[v.ID] = v.Clone()
	m.sourceIdx[k] = v.ID
	return nil
}

func (m *Memory) GetVoucher(_ context.Context, id ledger.VoucherID) (*ledger.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getVoucherLocked(id)
}

func (m *Memory) getVoucherLocked(id ledger.VoucherID) (*ledger.Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return nil, nil
	}
	return v.Clone(), nil
}

func (m *Memory) FindBySource(_ context.Context, st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findBySourceLocked(st, sourceID)
}

func (m *Memory) findBySourceLocked(st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	id, ok := m.sourceIdx[sourceKey{Type: st, ID: sourceID}]
	if !ok {
		return nil, nil
	}
	return m.getVoucherLocked(id)
}

func (m *Memory) UpdateVoucher(_ context.Context, v *ledger.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateVoucherLocked(v)
}

func (m *Memory) updateVoucherLocked(v *ledger.Voucher) error {
	if _, ok := m.vouchers[v.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.vouchers[v.ID] = v.Clone()
	return nil
}

func (m *Memory) DeleteVoucher(_ context.Context, id ledger.VoucherID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteVoucherLocked(id)
}

func (m *Memory) deleteVoucherLocked(id ledger.VoucherID) error {
	v, ok := m.vouchers[id]
	if !ok {
		return ledger.ErrNotFound
	}
	delete(m.sourceIdx, sourceKey{Type: v.SourceType, ID: v.SourceID})
	delete(m.vouchers, id)
	return nil
}

func (m *Memory) ListVouchers(_ context.Context, f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listVouchersLocked(f)
}

func (m *Memory) listVouchersLocked(f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	var out []*ledger.Voucher
	for _, v := range m.vouchers {
		if v.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if len(f.SourceTypes) > 0 && !containsType(f.SourceTypes, v.SourceType) {
			continue
		}
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsType(types []ledger.SourceType, t ledger.SourceType) bool {
	for _, st := range types {
		if st == t {
			return true
		}
	}
	return false
}

// =============================================================================
// COUNTERS
// =============================================================================

func (m *Memory) IncrementShard(_ context.Context, counterID string, shard int, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementShardLocked(counterID, shard, delta)
}

func (m *Memory) incrementShardLocked(counterID string, shard int, delta decimal.Decimal) error {
	shards, ok := m.counters[counterID]
	if !ok {
		shards = make(map[int]decimal.Decimal)
		m.counters[counterID] = shards
	}
	shards[shard] = shards[shard].Add(delta)
	return nil
}

func (m *Memory) ReadShards(_ context.Context, counterID string) ([]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readShardsLocked(counterID)
}

func (m *Memory) readShardsLocked(counterID string) ([]decimal.Decimal, error) {
	shards := m.counters[counterID]
	out := make([]decimal.Decimal, 0, len(shards))
	for _, v := range shards {
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(e)
}

func (m *Memory) appendAuditLocked(e ledger.AuditEntry) error {
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAuditLocked(f)
}

func (m *Memory) listAuditLocked(f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var out []ledger.AuditEntry
	for _, e := range m.audit {
		if f.VoucherID != nil && e.VoucherID != *f.VoucherID {
			continue
		}
		if len(f.Actions) > 0 && !containsAction(f.Actions, e.Action) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func containsAction(actions []ledger.AuditAction, a ledger.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// =============================================================================
// DELETED LOG
// =============================================================================

func (m *Memory) PutDeleted(_ context.Context, rec ledger.DeletedVoucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putDeletedLocked(rec)
}

func (m *Memory) putDeletedLocked(rec ledger.DeletedVoucher) error {
	m.deleted[rec.Voucher.ID] = rec
	return nil
}

func (m *Memory) GetDeleted(_ context.Context, id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDeletedLocked(id)
}

func (m *Memory) getDeletedLocked(id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	rec, ok := m.deleted[id]
	if !ok {
		return nil, nil
	}
	cp := rec
	cp.Voucher = *rec.Voucher.Clone()
	return &cp, nil
}

func (m *Memory) RemoveDeleted(_ context.Context, id ledger.VoucherID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeDeletedLocked(id)
}

func (m *Memory) removeDeletedLocked(id ledger.VoucherID) error {
	delete(m.deleted, id)
	return nil
}

// =============================================================================
// SOURCE RECORDS + ACCOUNTS
// =============================================================================

func (m *Memory) PutSourceRecord(_ context.Context, rec ledger.SourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putSourceRecordLocked(rec)
}

func (m *Memory) putSourceRecordLocked(rec ledger.SourceRecord) error {
	byID, ok := m.sources[rec.Type]
	if !ok {
		byID = make(map[string]ledger.SourceRecord)
		m.sources[rec.Type] = byID
	}
	byID[rec.ID] = rec
	return nil
}

func (m *Memory) ListSourceRecords(_ context.Context, st ledger.SourceType) ([]ledger.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSourceRecordsLocked(st)
}

func (m *Memory) listSourceRecordsLocked(st ledger.SourceType) ([]ledger.SourceRecord, error) {
	byID := m.sources[st]
	out := make([]ledger.SourceRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a)
}

func (m *Memory) saveAccountLocked(a ledger.Account) error {
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccountsLocked()
}

func (m *Memory) listAccountsLocked() ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx executes fn against a view that writes directly to the store
// while holding the write lock. On error the pre-transaction snapshot is
// restored, so partial writes never become visible.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	vouchers  map[ledger.VoucherID]*ledger.Voucher
	sourceIdx map[sourceKey]ledger.VoucherID
	counters  map[string]map[int]decimal.Decimal
	audit     []ledger.AuditEntry
	deleted   map[ledger.VoucherID]ledger.DeletedVoucher
	sources   map[ledger.SourceType]map[string]ledger.SourceRecord
	accounts  map[ledger.AccountID]ledger.Account
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		vouchers:  make(map[ledger.VoucherID]*ledger.Voucher, len(m.vouchers)),
		sourceIdx: make(map[sourceKey]ledger.VoucherID, len(m.sourceIdx)),
		counters:  make(map[string]map[int]decimal.Decimal, len(m.counters)),
		audit:     append([]ledger.AuditEntry(nil), m.audit...),
		deleted:   make(map[ledger.VoucherID]ledger.DeletedVoucher, len(m.deleted)),
		sources:   make(map[ledger.SourceType]map[string]ledger.SourceRecord, len(m.sources)),
		accounts:  make(map[ledger.AccountID]ledger.Account, len(m.accounts)),
	}
	for k, v := range m.vouchers {
		s.vouchers[k] = v.Clone()
	}
	for k, v := range m.sourceIdx {
		s.sourceIdx[k] = v
	}
	for k, shards := range m.counters {
		cp := make(map[int]decimal.Decimal, len(shards))
		for shard, val := range shards {
			cp[shard] = val
		}
		s.counters[k] = cp
	}
	for k, v := range m.deleted {
		s.deleted[k] = v
	}
	for k, byID := range m.sources {
		cp := make(map[string]ledger.SourceRecord, len(byID))
		for id, rec := range byID {
			cp[id] = rec
		}
		s.sources[k] = cp
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.vouchers = s.vouchers
	m.sourceIdx = s.sourceIdx
	m.counters = s.counters
	m.audit = s.audit
	m.deleted = s.deleted
	m.sources = s.sources
	m.accounts = s.accounts
}

// txView routes calls to the parent's locked methods; the parent holds the
// write lock for the whole transaction.
type txView struct {
	parent *Memory
}

func (t *txView) InsertVoucher(_ context.Context, v *ledger.Voucher) error {
	return t.parent.insertVoucherLocked(v)
}

func (t *txView) GetVoucher(_ context.Context, id ledger.VoucherID) (*ledger.Voucher, error) {
	return t.parent.getVoucherLocked(id)
}

func (t *txView) FindBySource(_ context.Context, st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	return t.parent.findBySourceLocked(st, sourceID)
}

func (t *txView) UpdateVoucher(_ context.Context, v *ledger.Voucher) error {
	return t.parent.updateVoucherLocked(v)
}

func (t *txView) DeleteVoucher(_ context.Context, id ledger.VoucherID) error {
	return t.parent.deleteVoucherLocked(id)
}

func (t *txView) ListVouchers(_ context.Context, f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	return t.parent.listVouchersLocked(f)
}

func (t *txView) IncrementShard(_ context.Context, counterID string, shard int, delta decimal.Decimal) error {
	return t.parent.incrementShardLocked(counterID, shard, delta)
}

func (t *txView) ReadShards(_ context.Context, counterID string) ([]decimal.Decimal, error) {
	return t.parent.readShardsLocked(counterID)
}

func (t *txView) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	return t.parent.appendAuditLocked(e)
}

func (t *txView) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return t.parent.listAuditLocked(f)
}

func (t *txView) PutDeleted(_ context.Context, rec ledger.DeletedVoucher) error {
	return t.parent.putDeletedLocked(rec)
}

func (t *txView) GetDeleted(_ context.Context, id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	return t.parent.getDeletedLocked(id)
}

func (t *txView) RemoveDeleted(_ context.Context, id ledger.VoucherID) error {
	return t.parent.removeDeletedLocked(id)
}

func (t *txView) PutSourceRecord(_ context.Context, rec ledger.SourceRecord) error {
	return t.parent.putSourceRecordLocked(rec)
}

func (t *txView) ListSourceRecords(_ context.Context, st ledger.SourceType) ([]ledger.SourceRecord, error) {
	return t.parent.listSourceRecordsLocked(st)
}

func (t *txView) SaveAccount(_ context.Context, a ledger.Account) error {
	return t.parent.saveAccountLocked(a)
}

func (t *txView) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	return t.parent.listAccountsLocked()
}
