/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, separate from the domain
  types. Amounts cross the wire as decimal strings so clients never see
  float artifacts; dates use "2006-01-02" and timestamps RFC3339.

CONVERSION:
  toVoucherDTO / parseEntries translate between wire and domain shapes.
  Parsing rejects malformed amounts before anything touches the engine.

SEE ALSO:
  - handlers.go: Where these structures are used
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tripledger/ledger-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUESTS
// =============================================================================

// EntryDTO is one voucher leg on the wire.
type EntryDTO struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Note    string `json:"note,omitempty"`
}

// PostVoucherRequest creates one voucher from a business record.
type PostVoucherRequest struct {
	SourceType string     `json:"source_type"`
	SourceID   string     `json:"source_id"`
	CompanyID  string     `json:"company_id"`
	Currency   string     `json:"currency"`
	Date       string     `json:"date"` // 2006-01-02
	Debits     []EntryDTO `json:"debits"`
	Credits    []EntryDTO `json:"credits"`
	CreatedBy  string     `json:"created_by,omitempty"`
}

// AmendVoucherRequest replaces a voucher's date and legs.
type AmendVoucherRequest struct {
	Date    string     `json:"date"`
	Debits  []EntryDTO `json:"debits"`
	Credits []EntryDTO `json:"credits"`
	ActorID string     `json:"actor_id,omitempty"`
}

// DeleteVoucherRequest carries the soft-delete attribution.
type DeleteVoucherRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// CompletenessAuditRequest narrows a completeness run to specific source
// types. Empty means all count-eligible plus expense types.
type CompletenessAuditRequest struct {
	SourceTypes []string `json:"source_types,omitempty"`
}

// AccountRequest registers or updates one chart account.
type AccountRequest struct {
	ID        string `json:"id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category"`
	Class     string `json:"class,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// SourceRecordRequest registers one business record for the completeness
// audit to reconcile against.
type SourceRecordRequest struct {
	SourceType    string `json:"source_type"`
	SourceID      string `json:"source_id"`
	CompanyID     string `json:"company_id,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Description   string `json:"description,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type VoucherDTO struct {
	ID         string     `json:"id"`
	SourceType string     `json:"source_type"`
	SourceID   string     `json:"source_id"`
	CompanyID  string     `json:"company_id,omitempty"`
	Currency   string     `json:"currency"`
	Date       string     `json:"date"`
	Month      string     `json:"month"`
	Debits     []EntryDTO `json:"debits"`
	Credits    []EntryDTO `json:"credits"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  string     `json:"created_at"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  string     `json:"deleted_at,omitempty"`
	DeletedBy  string     `json:"deleted_by,omitempty"`
}

type PostVoucherResponse struct {
	VoucherID string `json:"voucher_id"`
}

type AggregateDTO struct {
	CompanyID string `json:"company_id"`
	MonthID   string `json:"month_id"`
	Revenue   string `json:"revenue"`
	Cost      string `json:"cost"`
	Profit    string `json:"profit"`
	Count     int64  `json:"count"`
}

type ChartNodeDTO struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Debit       string         `json:"debit"`
	Credit      string         `json:"credit"`
	TotalDebit  string         `json:"total_debit"`
	TotalCredit string         `json:"total_credit"`
	Children    []ChartNodeDTO `json:"children,omitempty"`
}

type FlaggedVoucherDTO struct {
	VoucherID  string `json:"voucher_id"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Imbalance  string `json:"imbalance"`
	Legs       int    `json:"legs"`
	Reason     string `json:"reason"`
}

type BalanceAuditDTO struct {
	Checked int                 `json:"checked"`
	Fixed   int                 `json:"fixed"`
	Flagged []FlaggedVoucherDTO `json:"flagged"`
}

type CompletenessAuditDTO struct {
	Checked int `json:"checked"`
	Created int `json:"created"`
}

type AccountDTO struct {
	ID        string `json:"id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category"`
	Class     string `json:"class,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

type AuditEntryDTO struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	ActorID   string            `json:"actor_id,omitempty"`
	Action    string            `json:"action"`
	VoucherID string            `json:"voucher_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func parseEntries(dtos []EntryDTO) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, len(dtos))
	for i, d := range dtos {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", d.Amount, err)
		}
		out[i] = ledger.Entry{Account: ledger.AccountID(d.Account), Amount: amount, Note: d.Note}
	}
	return out, nil
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = EntryDTO{Account: string(e.Account), Amount: e.Amount.String(), Note: e.Note}
	}
	return out
}

func toVoucherDTO(v *ledger.Voucher) VoucherDTO {
	dto := VoucherDTO{
		ID:         string(v.ID),
		SourceType: string(v.SourceType),
		SourceID:   v.SourceID,
		CompanyID:  string(v.CompanyID),
		Currency:   v.Currency,
		Date:       v.Date.Format(dateLayout),
		Month:      string(v.Month()),
		Debits:     toEntryDTOs(v.Debits),
		Credits:    toEntryDTOs(v.Credits),
		CreatedBy:  v.CreatedBy,
		CreatedAt:  v.CreatedAt.Format(time.RFC3339),
		IsDeleted:  v.IsDeleted,
		DeletedBy:  v.DeletedBy,
	}
	if v.DeletedAt != nil {
		dto.DeletedAt = v.DeletedAt.Format(time.RFC3339)
	}
	return dto
}

func toChartNodeDTO(n *ledger.ChartNode) ChartNodeDTO {
	dto := ChartNodeDTO{
		ID:          n.ID,
		Code:        n.Code,
		Name:        n.Name,
		Category:    string(n.Category),
		Debit:       n.Debit.String(),
		Credit:      n.Credit.String(),
		TotalDebit:  n.TotalDebit.String(),
		TotalCredit: n.TotalCredit.String(),
	}
	for _, c := range n.Children {
		dto.Children = append(dto.Children, toChartNodeDTO(c))
	}
	return dto
}
