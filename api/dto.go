/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the ledger
  types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// VARIANTS
// =============================================================================

// VariantDTO represents a variant in API responses.
type VariantDTO struct {
	BusinessID   string `json:"business_id"`
	VariantID    string `json:"variant_id"`
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku,omitempty"`
	InventoryQty int64  `json:"inventory_qty"`
	Version      int64  `json:"version"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// CreateVariantRequest is the request to register a variant.
type CreateVariantRequest struct {
	VariantID    string `json:"variant_id"`
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku"`
	InventoryQty int64  `json:"inventory_qty"`
}

// =============================================================================
// MUTATIONS
// =============================================================================

// MutationRequestDTO carries exactly one of Delta or Target.
type MutationRequestDTO struct {
	Delta   *int64 `json:"delta,omitempty"`
	Target  *int64 `json:"target,omitempty"`
	Reason  string `json:"reason"`
	OrderID string `json:"order_id,omitempty"`
	Note    string `json:"note,omitempty"`
}

// MutationResultDTO is returned after a committed mutation.
type MutationResultDTO struct {
	EntryID     string `json:"entry_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
	ChangeQty   int64  `json:"change_qty"`
}

// =============================================================================
// ORDERS
// =============================================================================

// OrderLineDTO is one order line item.
type OrderLineDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int64  `json:"quantity"`
}

// DeductRequest is the body of the deduct endpoint.
type DeductRequest struct {
	Lines []OrderLineDTO `json:"lines"`
}

// LineOutcomeDTO is an applied order line.
type LineOutcomeDTO struct {
	OrderLineDTO
	EntryID     string `json:"entry_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
}

// LineFailureDTO is a failed order line.
type LineFailureDTO struct {
	OrderLineDTO
	Error string `json:"error"`
}

// SkippedLineDTO is an order line that was not applied.
type SkippedLineDTO struct {
	OrderLineDTO
	Reason string `json:"reason"`
}

// OrderResultDTO reports a Deduct or Restore per line.
type OrderResultDTO struct {
	OrderID string           `json:"order_id"`
	Applied []LineOutcomeDTO `json:"applied"`
	Failed  []LineFailureDTO `json:"failed"`
	Skipped []SkippedLineDTO `json:"skipped"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// BulkLineDTO is one line of a reconciliation batch.
type BulkLineDTO struct {
	SKU       string `json:"sku"`
	TargetQty int64  `json:"target_qty"`
}

// ReconcileRequest is the body of the reconciliation endpoint.
type ReconcileRequest struct {
	Lines []BulkLineDTO `json:"lines"`
}

// SheetReconcileRequest names the sheet range to reconcile from.
type SheetReconcileRequest struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
}

// BulkAppliedDTO is an applied reconciliation line.
type BulkAppliedDTO struct {
	SKU         string `json:"sku"`
	VariantID   string `json:"variant_id"`
	EntryID     string `json:"entry_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
}

// BulkFailureDTO is a failed reconciliation line.
type BulkFailureDTO struct {
	SKU   string `json:"sku"`
	Row   int    `json:"row,omitempty"`
	Error string `json:"error"`
}

// ReconcileResultDTO reports a reconciliation batch.
type ReconcileResultDTO struct {
	SuccessCount int              `json:"success_count"`
	Applied      []BulkAppliedDTO `json:"applied"`
	Failures     []BulkFailureDTO `json:"failures"`
}

// =============================================================================
// QUERIES
// =============================================================================

// LowStockDTO is the low-stock report.
type LowStockDTO struct {
	BusinessID string       `json:"business_id"`
	Threshold  int64        `json:"threshold"`
	Low        []VariantDTO `json:"low"`
	Negative   []VariantDTO `json:"negative"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	EntryID     string `json:"entry_id"`
	Seq         int64  `json:"seq"`
	VariantID   string `json:"variant_id"`
	ProductID   string `json:"product_id"`
	PreviousQty int64  `json:"previous_qty"`
	NewQty      int64  `json:"new_qty"`
	ChangeQty   int64  `json:"change_qty"`
	Reason      string `json:"reason"`
	Note        string `json:"note,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// HistoryResponse wraps a page of entries.
type HistoryResponse struct {
	Entries []EntryDTO `json:"entries"`
}

// QuantityAtDTO is a point-in-time quantity.
type QuantityAtDTO struct {
	VariantID    string `json:"variant_id"`
	At           string `json:"at"`
	InventoryQty int64  `json:"inventory_qty"`
}

// AuditBreakDTO is one chain break found by an audit.
type AuditBreakDTO struct {
	Seq     int64  `json:"seq"`
	EntryID string `json:"entry_id"`
	Problem string `json:"problem"`
}

// AuditDTO is the replay check result for a variant.
type AuditDTO struct {
	VariantID  string          `json:"variant_id"`
	Consistent bool            `json:"consistent"`
	Entries    int             `json:"entries"`
	StartQty   int64           `json:"start_qty"`
	EndQty     int64           `json:"end_qty"`
	CurrentQty int64           `json:"current_qty"`
	Deleted    bool            `json:"deleted,omitempty"`
	Breaks     []AuditBreakDTO `json:"breaks,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toVariantDTO(v ledger.Variant) VariantDTO {
	return VariantDTO{
		BusinessID:   string(v.BusinessID),
		VariantID:    string(v.VariantID),
		ProductID:    string(v.ProductID),
		SKU:          v.SKU,
		InventoryQty: v.InventoryQty,
		Version:      v.Version,
		CreatedAt:    formatTime(v.CreatedAt),
		UpdatedAt:    formatTime(v.UpdatedAt),
	}
}

func toVariantDTOs(vs []ledger.Variant) []VariantDTO {
	out := make([]VariantDTO, len(vs))
	for i, v := range vs {
		out[i] = toVariantDTO(v)
	}
	return out
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		EntryID:     string(e.ID),
		Seq:         e.Seq,
		VariantID:   string(e.VariantID),
		ProductID:   string(e.ProductID),
		PreviousQty: e.PreviousQty,
		NewQty:      e.NewQty,
		ChangeQty:   e.ChangeQty,
		Reason:      string(e.Reason),
		Note:        e.Note,
		OrderID:     e.OrderID,
		ActorID:     e.ActorID,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

func toOrderLineDTO(l ledger.OrderLine) OrderLineDTO {
	return OrderLineDTO{ProductID: string(l.ProductID), VariantID: string(l.VariantID), Quantity: l.Quantity}
}

func toOrderLines(dtos []OrderLineDTO) []ledger.OrderLine {
	lines := make([]ledger.OrderLine, len(dtos))
	for i, d := range dtos {
		lines[i] = ledger.OrderLine{
			ProductID: ledger.ProductID(d.ProductID),
			VariantID: ledger.VariantID(d.VariantID),
			Quantity:  d.Quantity,
		}
	}
	return lines
}

func toOrderResultDTO(orderID string, applied []ledger.LineOutcome, failed []ledger.LineFailure, skipped []ledger.SkippedLine) OrderResultDTO {
	res := OrderResultDTO{
		OrderID: orderID,
		Applied: make([]LineOutcomeDTO, len(applied)),
		Failed:  make([]LineFailureDTO, len(failed)),
		Skipped: make([]SkippedLineDTO, len(skipped)),
	}
	for i, a := range applied {
		res.Applied[i] = LineOutcomeDTO{
			OrderLineDTO: toOrderLineDTO(a.Line),
			EntryID:      string(a.EntryID),
			PreviousQty:  a.PreviousQty,
			NewQty:       a.NewQty,
		}
	}
	for i, f := range failed {
		res.Failed[i] = LineFailureDTO{OrderLineDTO: toOrderLineDTO(f.Line), Error: f.Err.Error()}
	}
	for i, s := range skipped {
		res.Skipped[i] = SkippedLineDTO{OrderLineDTO: toOrderLineDTO(s.Line), Reason: string(s.Reason)}
	}
	return res
}

func toReconcileResultDTO(res ledger.BulkResult) ReconcileResultDTO {
	out := ReconcileResultDTO{
		SuccessCount: res.SuccessCount,
		Applied:      make([]BulkAppliedDTO, len(res.Applied)),
		Failures:     make([]BulkFailureDTO, len(res.Failures)),
	}
	for i, a := range res.Applied {
		out.Applied[i] = BulkAppliedDTO{
			SKU:         a.SKU,
			VariantID:   string(a.VariantID),
			EntryID:     string(a.EntryID),
			PreviousQty: a.PreviousQty,
			NewQty:      a.NewQty,
		}
	}
	for i, f := range res.Failures {
		out.Failures[i] = BulkFailureDTO{SKU: f.SKU, Row: f.Row, Error: f.Err.Error()}
	}
	return out
}

func toAuditDTO(r ledger.AuditReport) AuditDTO {
	out := AuditDTO{
		VariantID:  string(r.VariantID),
		Consistent: r.Consistent(),
		Entries:    r.Entries,
		StartQty:   r.StartQty,
		EndQty:     r.EndQty,
		CurrentQty: r.CurrentQty,
		Deleted:    r.Deleted,
	}
	for _, b := range r.Breaks {
		out.Breaks = append(out.Breaks, AuditBreakDTO{Seq: b.Seq, EntryID: string(b.EntryID), Problem: b.Problem})
	}
	return out
}
