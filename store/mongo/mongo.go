/*
Package mongo provides a MongoDB-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.TxStore on the official MongoDB driver. Vouchers are
  stored as whole documents with their legs embedded, so a voucher reads
  and writes as one atomic document.

COLLECTIONS:
  vouchers:         One document per voucher. The unique compound index on
                    (source_type, source_id) is the idempotency key; a
                    duplicate-key error maps to ledger.ErrDuplicateSource.
  counter_shards:   One document per (counter, shard); increments are a
                    single upserted $inc, the atomic single-record add the
                    sharded counter requires.
  deleted_vouchers: Full-payload mirror of soft-deleted vouchers.
  audit_log:        Append-only operational trail.
  source_records:   Business records for the completeness audit.
  accounts:         Chart-of-accounts configuration.

TRANSACTIONS:
  WithTx starts a session and runs fn via session.WithTransaction. The
  transactional view rebinds every call to the session context so all
  writes inside fn commit or abort together. Requires a replica set.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite/sqlite.go: The embedded-database equivalent
*/
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripledger/ledger-engine/ledger"
)

// Store implements ledger.TxStore using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and prepares indexes. dbName defaults to
// "ledger" when empty.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	if dbName == "" {
		dbName = "ledger"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.vouchers().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source_type", Value: 1}, {Key: "source_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "company_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("counter_shards").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "counter_id", Value: 1}, {Key: "shard", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("audit_log").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "voucher_id", Value: 1}},
	})
	return err
}

func (s *Store) vouchers() *mongo.Collection { return s.db.Collection("vouchers") }

// WithTx runs fn inside a MongoDB session transaction. The store view
// handed to fn rebinds every call to the session context.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %v", ledger.ErrStoreUnavailable, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(&sessionStore{store: s, ctx: sessCtx})
	})
	if mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ledger.ErrTransactionConflict, err)
	}
	return err
}

// =============================================================================
// DOCUMENT MODELS
// =============================================================================

type entryDoc struct {
	Account string `bson:"account"`
	Amount  string `bson:"amount"`
	Note    string `bson:"note,omitempty"`
}

type voucherDoc struct {
	ID           string     `bson:"_id"`
	SourceType   string     `bson:"source_type"`
	SourceID     string     `bson:"source_id"`
	CompanyID    string     `bson:"company_id"`
	Currency     string     `bson:"currency"`
	Date         time.Time  `bson:"date"`
	Debits       []entryDoc `bson:"debits"`
	Credits      []entryDoc `bson:"credits"`
	CreatedBy    string     `bson:"created_by"`
	CreatedAt    time.Time  `bson:"created_at"`
	IsDeleted    bool       `bson:"is_deleted"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty"`
	DeletedBy    string     `bson:"deleted_by,omitempty"`
	DeleteReason string     `bson:"delete_reason,omitempty"`
}

func entriesToDocs(entries []ledger.Entry) []entryDoc {
	out := make([]entryDoc, len(entries))
	for i, e := range entries {
		out[i] = entryDoc{Account: string(e.Account), Amount: e.Amount.String(), Note: e.Note}
	}
	return out
}

func entriesFromDocs(docs []entryDoc) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, len(docs))
	for i, d := range docs {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", d.Amount, err)
		}
		out[i] = ledger.Entry{Account: ledger.AccountID(d.Account), Amount: amount, Note: d.Note}
	}
	return out, nil
}

func toVoucherDoc(v *ledger.Voucher) voucherDoc {
	return voucherDoc{
		ID:           string(v.ID),
		SourceType:   string(v.SourceType),
		SourceID:     v.SourceID,
		CompanyID:    string(v.CompanyID),
		Currency:     v.Currency,
		Date:         v.Date.UTC(),
		Debits:       entriesToDocs(v.Debits),
		Credits:      entriesToDocs(v.Credits),
		CreatedBy:    v.CreatedBy,
		CreatedAt:    v.CreatedAt.UTC(),
		IsDeleted:    v.IsDeleted,
		DeletedAt:    v.DeletedAt,
		DeletedBy:    v.DeletedBy,
		DeleteReason: v.DeleteReason,
	}
}

func fromVoucherDoc(d voucherDoc) (*ledger.Voucher, error) {
	debits, err := entriesFromDocs(d.Debits)
	if err != nil {
		return nil, err
	}
	credits, err := entriesFromDocs(d.Credits)
	if err != nil {
		return nil, err
	}
	return &ledger.Voucher{
		ID:           ledger.VoucherID(d.ID),
		SourceType:   ledger.SourceType(d.SourceType),
		SourceID:     d.SourceID,
		CompanyID:    ledger.CompanyID(d.CompanyID),
		Currency:     d.Currency,
		Date:         d.Date,
		Debits:       debits,
		Credits:      credits,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		IsDeleted:    d.IsDeleted,
		DeletedAt:    d.DeletedAt,
		DeletedBy:    d.DeletedBy,
		DeleteReason: d.DeleteReason,
	}, nil
}

// =============================================================================
// VOUCHERS
// =============================================================================

func (s *Store) InsertVoucher(ctx context.Context, v *ledger.Voucher) error {
	_, err := s.vouchers().InsertOne(ctx, toVoucherDoc(v))
	if mongo.IsDuplicateKeyError(err) {
		return ledger.ErrDuplicateSource
	}
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

func (s *Store) GetVoucher(ctx context.Context, id ledger.VoucherID) (*ledger.Voucher, error) {
	return s.findVoucher(ctx, bson.M{"_id": string(id)})
}

func (s *Store) FindBySource(ctx context.Context, st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	return s.findVoucher(ctx, bson.M{"source_type": string(st), "source_id": sourceID})
}

func (s *Store) findVoucher(ctx context.Context, filter bson.M) (*ledger.Voucher, error) {
	var doc voucherDoc
	err := s.vouchers().FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find voucher: %w", err)
	}
	return fromVoucherDoc(doc)
}

func (s *Store) UpdateVoucher(ctx context.Context, v *ledger.Voucher) error {
	res, err := s.vouchers().ReplaceOne(ctx, bson.M{"_id": string(v.ID)}, toVoucherDoc(v))
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteVoucher(ctx context.Context, id ledger.VoucherID) error {
	res, err := s.vouchers().DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	if res.DeletedCount == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListVouchers(ctx context.Context, f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["is_deleted"] = false
	}
	if len(f.SourceTypes) > 0 {
		types := make([]string, len(f.SourceTypes))
		for i, st := range f.SourceTypes {
			types[i] = string(st)
		}
		filter["source_type"] = bson.M{"$in": types}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.vouchers().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer cur.Close(ctx)

	var out []*ledger.Voucher
	for cur.Next(ctx) {
		var doc voucherDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		v, err := fromVoucherDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}

// =============================================================================
// COUNTERS
// =============================================================================

// IncrementShard is a single upserted $inc. Shard values are stored as
// float64: rollups tolerate sub-epsilon drift, voucher amounts stay exact
// decimal strings.
func (s *Store) IncrementShard(ctx context.Context, counterID string, shard int, delta decimal.Decimal) error {
	f, _ := delta.Float64()
	_, err := s.db.Collection("counter_shards").UpdateOne(ctx,
		bson.M{"counter_id": counterID, "shard": shard},
		bson.M{"$inc": bson.M{"value": f}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("increment shard: %w", err)
	}
	return nil
}

func (s *Store) ReadShards(ctx context.Context, counterID string) ([]decimal.Decimal, error) {
	cur, err := s.db.Collection("counter_shards").Find(ctx, bson.M{"counter_id": counterID})
	if err != nil {
		return nil, fmt.Errorf("read shards: %w", err)
	}
	defer cur.Close(ctx)

	var out []decimal.Decimal
	for cur.Next(ctx) {
		var doc struct {
			Value float64 `bson:"value"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, decimal.NewFromFloat(doc.Value))
	}
	return out, cur.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type auditDoc struct {
	ID        string            `bson:"_id"`
	Timestamp time.Time         `bson:"timestamp"`
	ActorID   string            `bson:"actor_id"`
	Action    string            `bson:"action"`
	VoucherID string            `bson:"voucher_id"`
	Payload   map[string]string `bson:"payload,omitempty"`
}

func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	_, err := s.db.Collection("audit_log").InsertOne(ctx, auditDoc{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC(),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		VoucherID: string(e.VoucherID),
		Payload:   e.Payload,
	})
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	filter := bson.M{}
	if f.VoucherID != nil {
		filter["voucher_id"] = string(*f.VoucherID)
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		filter["action"] = bson.M{"$in": actions}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection("audit_log").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer cur.Close(ctx)

	var out []ledger.AuditEntry
	for cur.Next(ctx) {
		var doc auditDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, ledger.AuditEntry{
			ID:        doc.ID,
			Timestamp: doc.Timestamp,
			ActorID:   doc.ActorID,
			Action:    ledger.AuditAction(doc.Action),
			VoucherID: ledger.VoucherID(doc.VoucherID),
			Payload:   doc.Payload,
		})
	}
	return out, cur.Err()
}

// =============================================================================
// DELETED LOG
// =============================================================================

type deletedDoc struct {
	ID        string     `bson:"_id"`
	Voucher   voucherDoc `bson:"voucher"`
	DeletedAt time.Time  `bson:"deleted_at"`
	DeletedBy string     `bson:"deleted_by"`
	Reason    string     `bson:"reason"`
}

func (s *Store) PutDeleted(ctx context.Context, rec ledger.DeletedVoucher) error {
	doc := deletedDoc{
		ID:        string(rec.Voucher.ID),
		Voucher:   toVoucherDoc(&rec.Voucher),
		DeletedAt: rec.DeletedAt.UTC(),
		DeletedBy: rec.DeletedBy,
		Reason:    rec.Reason,
	}
	_, err := s.db.Collection("deleted_vouchers").ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put deleted: %w", err)
	}
	return nil
}

func (s *Store) GetDeleted(ctx context.Context, id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	var doc deletedDoc
	err := s.db.Collection("deleted_vouchers").FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deleted: %w", err)
	}
	v, err := fromVoucherDoc(doc.Voucher)
	if err != nil {
		return nil, err
	}
	return &ledger.DeletedVoucher{
		Voucher:   *v,
		DeletedAt: doc.DeletedAt,
		DeletedBy: doc.DeletedBy,
		Reason:    doc.Reason,
	}, nil
}

func (s *Store) RemoveDeleted(ctx context.Context, id ledger.VoucherID) error {
	_, err := s.db.Collection("deleted_vouchers").DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return fmt.Errorf("remove deleted: %w", err)
	}
	return nil
}

// =============================================================================
// SOURCE RECORDS + ACCOUNTS
// =============================================================================

type sourceDoc struct {
	ID            string    `bson:"_id"` // "{type}:{id}"
	SourceType    string    `bson:"source_type"`
	SourceID      string    `bson:"source_id"`
	CompanyID     string    `bson:"company_id"`
	Currency      string    `bson:"currency"`
	Date          time.Time `bson:"date"`
	Amount        string    `bson:"amount"`
	DebitAccount  string    `bson:"debit_account"`
	CreditAccount string    `bson:"credit_account"`
	Description   string    `bson:"description"`
}

func (s *Store) PutSourceRecord(ctx context.Context, rec ledger.SourceRecord) error {
	doc := sourceDoc{
		ID:            string(rec.Type) + ":" + rec.ID,
		SourceType:    string(rec.Type),
		SourceID:      rec.ID,
		CompanyID:     string(rec.CompanyID),
		Currency:      rec.Currency,
		Date:          rec.Date.UTC(),
		Amount:        rec.Amount.String(),
		DebitAccount:  string(rec.DebitAccount),
		CreditAccount: string(rec.CreditAccount),
		Description:   rec.Description,
	}
	_, err := s.db.Collection("source_records").ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put source record: %w", err)
	}
	return nil
}

func (s *Store) ListSourceRecords(ctx context.Context, st ledger.SourceType) ([]ledger.SourceRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "source_id", Value: 1}})
	cur, err := s.db.Collection("source_records").Find(ctx,
		bson.M{"source_type": string(st)}, opts)
	if err != nil {
		return nil, fmt.Errorf("list source records: %w", err)
	}
	defer cur.Close(ctx)

	var out []ledger.SourceRecord
	for cur.Next(ctx) {
		var doc sourceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(doc.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", doc.Amount, err)
		}
		out = append(out, ledger.SourceRecord{
			Type:          ledger.SourceType(doc.SourceType),
			ID:            doc.SourceID,
			CompanyID:     ledger.CompanyID(doc.CompanyID),
			Currency:      doc.Currency,
			Date:          doc.Date,
			Amount:        amount,
			DebitAccount:  ledger.AccountID(doc.DebitAccount),
			CreditAccount: ledger.AccountID(doc.CreditAccount),
			Description:   doc.Description,
		})
	}
	return out, cur.Err()
}

type accountDoc struct {
	ID        string `bson:"_id"`
	Code      string `bson:"code"`
	Name      string `bson:"name"`
	Category  string `bson:"category"`
	Class     string `bson:"class"`
	ParentID  string `bson:"parent_id"`
	CompanyID string `bson:"company_id"`
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	doc := accountDoc{
		ID:        string(a.ID),
		Code:      a.Code,
		Name:      a.Name,
		Category:  string(a.Category),
		Class:     string(a.Class),
		ParentID:  string(a.Parent),
		CompanyID: string(a.CompanyID),
	}
	_, err := s.db.Collection("accounts").ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "code", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection("accounts").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	var out []ledger.Account
	for cur.Next(ctx) {
		var doc accountDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, ledger.Account{
			ID:        ledger.AccountID(doc.ID),
			Code:      doc.Code,
			Name:      doc.Name,
			Category:  ledger.AccountCategory(doc.Category),
			Class:     ledger.AccountClass(doc.Class),
			Parent:    ledger.AccountID(doc.ParentID),
			CompanyID: ledger.CompanyID(doc.CompanyID),
		})
	}
	return out, cur.Err()
}

// =============================================================================
// SESSION VIEW - Store bound to a transaction's session context
// =============================================================================

// sessionStore rebinds every store call to the session context so writes
// made inside WithTx join the transaction regardless of the context the
// engine passes in.
type sessionStore struct {
	store *Store
	ctx   mongo.SessionContext
}

func (t *sessionStore) InsertVoucher(_ context.Context, v *ledger.Voucher) error {
	return t.store.InsertVoucher(t.ctx, v)
}

func (t *sessionStore) GetVoucher(_ context.Context, id ledger.VoucherID) (*ledger.Voucher, error) {
	return t.store.GetVoucher(t.ctx, id)
}

func (t *sessionStore) FindBySource(_ context.Context, st ledger.SourceType, sourceID string) (*ledger.Voucher, error) {
	return t.store.FindBySource(t.ctx, st, sourceID)
}

func (t *sessionStore) UpdateVoucher(_ context.Context, v *ledger.Voucher) error {
	return t.store.UpdateVoucher(t.ctx, v)
}

func (t *sessionStore) DeleteVoucher(_ context.Context, id ledger.VoucherID) error {
	return t.store.DeleteVoucher(t.ctx, id)
}

func (t *sessionStore) ListVouchers(_ context.Context, f ledger.VoucherFilter) ([]*ledger.Voucher, error) {
	return t.store.ListVouchers(t.ctx, f)
}

func (t *sessionStore) IncrementShard(_ context.Context, counterID string, shard int, delta decimal.Decimal) error {
	return t.store.IncrementShard(t.ctx, counterID, shard, delta)
}

func (t *sessionStore) ReadShards(_ context.Context, counterID string) ([]decimal.Decimal, error) {
	return t.store.ReadShards(t.ctx, counterID)
}

func (t *sessionStore) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	return t.store.AppendAudit(t.ctx, e)
}

func (t *sessionStore) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return t.store.ListAudit(t.ctx, f)
}

func (t *sessionStore) PutDeleted(_ context.Context, rec ledger.DeletedVoucher) error {
	return t.store.PutDeleted(t.ctx, rec)
}

func (t *sessionStore) GetDeleted(_ context.Context, id ledger.VoucherID) (*ledger.DeletedVoucher, error) {
	return t.store.GetDeleted(t.ctx, id)
}

func (t *sessionStore) RemoveDeleted(_ context.Context, id ledger.VoucherID) error {
	return t.store.RemoveDeleted(t.ctx, id)
}

func (t *sessionStore) PutSourceRecord(_ context.Context, rec ledger.SourceRecord) error {
	return t.store.PutSourceRecord(t.ctx, rec)
}

func (t *sessionStore) ListSourceRecords(_ context.Context, st ledger.SourceType) ([]ledger.SourceRecord, error) {
	return t.store.ListSourceRecords(t.ctx, st)
}

func (t *sessionStore) SaveAccount(_ context.Context, a ledger.Account) error {
	return t.store.SaveAccount(t.ctx, a)
}

func (t *sessionStore) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	return t.store.ListAccounts(t.ctx)
}
