/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Vouchers:
    POST   /api/vouchers                  Post a voucher (idempotent)
    GET    /api/vouchers                  List vouchers
    GET    /api/vouchers/{id}             Get one voucher
    POST   /api/vouchers/{id}/amend       Replace date and legs
    DELETE /api/vouchers/{id}             Soft delete
    POST   /api/vouchers/{id}/restore     Restore a soft-deleted voucher
    DELETE /api/vouchers/{id}/purge       Permanently remove
    GET    /api/vouchers/{id}/audit       Operational trail for one voucher

  Aggregates:
    GET    /api/aggregates/{companyID}/{monthID}  Monthly rollup

  Chart:
    GET    /api/chart-of-accounts         Hierarchical balance tree

  Audits:
    POST   /api/audits/balance            Balance audit run
    POST   /api/audits/completeness       Completeness audit run

  Configuration:
    GET    /api/accounts                  List chart accounts
    POST   /api/accounts                  Register an account
    POST   /api/source-records            Register a business record

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Voucher not found
  - 409: Invalid lifecycle transition, duplicate source
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tripledger/ledger-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. The engines share one
// observer set so aggregates and the chart cache track every write path.
type Handler struct {
	Store      ledger.TxStore
	Registry   *ledger.Registry
	Poster     *ledger.JournalPoster
	Aggregator *ledger.PeriodAggregator
	Chart      *ledger.ChartOfAccountsBuilder
	Lifecycle  *ledger.VoucherLifecycleManager
	Audit      *ledger.AuditEngine
}

// NewHandler wires the full engine stack onto one store.
func NewHandler(store ledger.TxStore, registry *ledger.Registry) *Handler {
	aggregator := ledger.NewPeriodAggregator(registry, ledger.DefaultShards)
	chart := ledger.NewChartOfAccountsBuilder(store, registry)
	poster := ledger.NewJournalPoster(store, aggregator, chart)

	return &Handler{
		Store:      store,
		Registry:   registry,
		Poster:     poster,
		Aggregator: aggregator,
		Chart:      chart,
		Lifecycle:  ledger.NewVoucherLifecycleManager(store, aggregator, chart),
		Audit:      ledger.NewAuditEngine(store, poster, ledger.DefaultAuditPolicy()),
	}
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

// PostVoucher creates a voucher from a business record.
func (h *Handler) PostVoucher(w http.ResponseWriter, r *http.Request) {
	var req PostVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	debits, err := parseEntries(req.Debits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debit entries", err)
		return
	}
	credits, err := parseEntries(req.Credits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credit entries", err)
		return
	}

	id, err := h.Poster.Post(r.Context(), ledger.PostParams{
		SourceType: ledger.SourceType(req.SourceType),
		SourceID:   req.SourceID,
		CompanyID:  ledger.CompanyID(req.CompanyID),
		Currency:   req.Currency,
		Date:       date,
		Debits:     debits,
		Credits:    credits,
		CreatedBy:  req.CreatedBy,
	})
	if err != nil {
		writeLedgerError(w, "Failed to post voucher", err)
		return
	}
	writeJSON(w, http.StatusCreated, PostVoucherResponse{VoucherID: string(id)})
}

// ListVouchers returns vouchers, optionally including soft-deleted ones
// (?include_deleted=true) or narrowed to one source type (?source_type=).
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	filter := ledger.VoucherFilter{}
	if v, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted")); v {
		filter.IncludeDeleted = true
	}
	if st := r.URL.Query().Get("source_type"); st != "" {
		filter.SourceTypes = []ledger.SourceType{ledger.SourceType(st)}
	}

	vouchers, err := h.Store.ListVouchers(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vouchers", err)
		return
	}
	dtos := make([]VoucherDTO, len(vouchers))
	for i, v := range vouchers {
		dtos[i] = toVoucherDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetVoucher returns a single voucher, soft-deleted included.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	v, err := h.Store.GetVoucher(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get voucher", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Voucher not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(v))
}

// AmendVoucher replaces a voucher's date and legs.
func (h *Handler) AmendVoucher(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	var req AmendVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	debits, err := parseEntries(req.Debits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debit entries", err)
		return
	}
	credits, err := parseEntries(req.Credits)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credit entries", err)
		return
	}

	if err := h.Poster.Amend(r.Context(), id, ledger.AmendParams{
		Date:    date,
		Debits:  debits,
		Credits: credits,
		ActorID: req.ActorID,
	}); err != nil {
		writeLedgerError(w, "Failed to amend voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "amended"})
}

// DeleteVoucher soft-deletes a voucher.
func (h *Handler) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	var req DeleteVoucherRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // attribution is optional
	}

	if err := h.Lifecycle.SoftDelete(r.Context(), id, req.ActorID, req.Reason); err != nil {
		writeLedgerError(w, "Failed to delete voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RestoreVoucher brings a soft-deleted voucher back.
func (h *Handler) RestoreVoucher(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	var req DeleteVoucherRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.Lifecycle.Restore(r.Context(), id, req.ActorID); err != nil {
		writeLedgerError(w, "Failed to restore voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// PurgeVoucher permanently removes a soft-deleted voucher.
func (h *Handler) PurgeVoucher(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	var req DeleteVoucherRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.Lifecycle.Purge(r.Context(), id, req.ActorID); err != nil {
		writeLedgerError(w, "Failed to purge voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// GetVoucherAudit returns the operational trail for one voucher.
func (h *Handler) GetVoucherAudit(w http.ResponseWriter, r *http.Request) {
	id := ledger.VoucherID(chi.URLParam(r, "id"))

	entries, err := h.Store.ListAudit(r.Context(), ledger.AuditFilter{VoucherID: &id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit entries", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			VoucherID: string(e.VoucherID),
			Payload:   e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AGGREGATE HANDLERS
// =============================================================================

// GetAggregate returns the monthly rollup for one company.
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	company := ledger.CompanyID(chi.URLParam(r, "companyID"))
	month, err := ledger.ParseMonthID(chi.URLParam(r, "monthID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
		return
	}

	agg, err := h.Aggregator.Aggregate(r.Context(), h.Store, company, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read aggregate", err)
		return
	}
	writeJSON(w, http.StatusOK, AggregateDTO{
		CompanyID: string(agg.CompanyID),
		MonthID:   string(agg.MonthID),
		Revenue:   agg.Revenue.String(),
		Cost:      agg.Cost.String(),
		Profit:    agg.Profit.String(),
		Count:     agg.Count,
	})
}

// =============================================================================
// CHART HANDLERS
// =============================================================================

// GetChartOfAccounts returns the hierarchical balance tree.
func (h *Handler) GetChartOfAccounts(w http.ResponseWriter, r *http.Request) {
	roots, err := h.Chart.Build(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build chart of accounts", err)
		return
	}
	dtos := make([]ChartNodeDTO, len(roots))
	for i, n := range roots {
		dtos[i] = toChartNodeDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// RunBalanceAudit scans all active vouchers for balance violations.
func (h *Handler) RunBalanceAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Audit.RunBalanceAudit(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Balance audit failed", err)
		return
	}
	dto := BalanceAuditDTO{
		Checked: report.Checked,
		Fixed:   report.Fixed,
		Flagged: make([]FlaggedVoucherDTO, len(report.Flagged)),
	}
	for i, f := range report.Flagged {
		dto.Flagged[i] = FlaggedVoucherDTO{
			VoucherID:  string(f.VoucherID),
			SourceType: string(f.SourceType),
			SourceID:   f.SourceID,
			Imbalance:  f.Imbalance.String(),
			Legs:       f.Legs,
			Reason:     f.Reason,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// RunCompletenessAudit backfills vouchers for unposted business records.
func (h *Handler) RunCompletenessAudit(w http.ResponseWriter, r *http.Request) {
	var req CompletenessAuditRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	types := make([]ledger.SourceType, len(req.SourceTypes))
	for i, s := range req.SourceTypes {
		types[i] = ledger.SourceType(s)
	}

	report, err := h.Audit.RunCompletenessAudit(r.Context(), types)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Completeness audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CompletenessAuditDTO{
		Checked: report.Checked,
		Created: report.Created,
	})
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// ListAccounts returns the registered chart accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.Registry.Accounts()
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = AccountDTO{
			ID:        string(a.ID),
			Code:      a.Code,
			Name:      a.Name,
			Category:  string(a.Category),
			Class:     string(a.Class),
			ParentID:  string(a.Parent),
			CompanyID: string(a.CompanyID),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount registers an account and persists it.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "Account id and category are required", nil)
		return
	}

	account := ledger.Account{
		ID:        ledger.AccountID(req.ID),
		Code:      req.Code,
		Name:      req.Name,
		Category:  ledger.AccountCategory(req.Category),
		Class:     ledger.AccountClass(req.Class),
		Parent:    ledger.AccountID(req.ParentID),
		CompanyID: ledger.CompanyID(req.CompanyID),
	}
	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save account", err)
		return
	}
	h.Registry.Register(account)
	h.Chart.Invalidate()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// CreateSourceRecord registers a business record for the completeness
// audit to reconcile against.
func (h *Handler) CreateSourceRecord(w http.ResponseWriter, r *http.Request) {
	var req SourceRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if err := h.Store.PutSourceRecord(r.Context(), ledger.SourceRecord{
		Type:          ledger.SourceType(req.SourceType),
		ID:            req.SourceID,
		CompanyID:     ledger.CompanyID(req.CompanyID),
		Currency:      req.Currency,
		Date:          date,
		Amount:        amount,
		DebitAccount:  ledger.AccountID(req.DebitAccount),
		CreditAccount: ledger.AccountID(req.CreditAccount),
		Description:   req.Description,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save source record", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps domain errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInvalidTransition), errors.Is(err, ledger.ErrDuplicateSource):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
