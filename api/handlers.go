/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to ledger.Service.

ENDPOINTS (all under /api/tenants/{tenant}):
  Variants:
    POST   /variants                       Register a variant
    GET    /variants/{id}                  Current quantity and version
    DELETE /variants/{id}                  Remove the stock row (history stays)
    POST   /variants/{id}/mutations        Single admin change
    GET    /variants/{id}/audit            Replay check of the entry chain
    GET    /variants/{id}/quantity?at=     Point-in-time quantity

  Orders:
    POST   /orders/{orderId}/deduct        Order placed
    POST   /orders/{orderId}/restore       Order refunded or cancelled

  Reconciliation:
    POST   /reconciliations                Bulk set by SKU
    POST   /reconciliations/sheet          Bulk set from a Google Sheet range

  Queries:
    GET    /low-stock?threshold=N
    GET    /history?variant_id=&product_id=&order_id=&limit=

ERROR HANDLING:
  Errors are returned as JSON with the status from statusFor:
  - 400: invalid reason, quantity or line
  - 404: unknown variant, SKU or order
  - 409: retry budget exhausted, variant already exists, order line already applied
  - 422: insufficient stock
  - 503: storage unavailable
  - 207: batch applied with per-line failures

ACTOR:
  The X-Actor-ID header is trusted as the acting user for manual changes.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/importer"
	"github.com/warp/inventory-ledger/ledger"
)

// ActorHeader carries the acting user for manual changes.
const ActorHeader = "X-Actor-ID"

const defaultLowStockThreshold = 5

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service

	// Sheets is nil when no Google credentials are configured.
	Sheets importer.SheetReader

	LowStockThreshold int64

	logger *zap.Logger
}

// NewHandler creates a new handler for the given service.
func NewHandler(svc *ledger.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:           svc,
		LowStockThreshold: defaultLowStockThreshold,
		logger:            logger,
	}
}

func tenant(r *http.Request) ledger.BusinessID {
	return ledger.BusinessID(chi.URLParam(r, "tenant"))
}

func variantParam(r *http.Request) ledger.VariantID {
	return ledger.VariantID(chi.URLParam(r, "id"))
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// =============================================================================
// VARIANT HANDLERS
// =============================================================================

// CreateVariant registers a variant with its initial quantity.
func (h *Handler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	var req CreateVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	v, err := h.Service.CreateVariant(r.Context(), ledger.Variant{
		BusinessID:   tenant(r),
		VariantID:    ledger.VariantID(req.VariantID),
		ProductID:    ledger.ProductID(req.ProductID),
		SKU:          req.SKU,
		InventoryQty: req.InventoryQty,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create variant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVariantDTO(v))
}

// GetVariant returns the variant's current quantity.
func (h *Handler) GetVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.GetVariant(r.Context(), tenant(r), variantParam(r))
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get variant", err)
		return
	}
	writeJSON(w, http.StatusOK, toVariantDTO(v))
}

// DeleteVariant removes the stock row. History is kept.
func (h *Handler) DeleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteVariant(r.Context(), tenant(r), variantParam(r)); err != nil {
		h.writeLedgerError(w, r, "Failed to delete variant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mutate applies one relative or absolute change.
func (h *Handler) Mutate(w http.ResponseWriter, r *http.Request) {
	var req MutationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var change ledger.Change
	switch {
	case req.Delta != nil && req.Target == nil:
		change = ledger.Delta(*req.Delta)
	case req.Target != nil && req.Delta == nil:
		change = ledger.SetTo(*req.Target)
	default:
		writeError(w, http.StatusBadRequest, "Exactly one of delta or target is required", nil)
		return
	}

	reason, err := ledger.ParseReason(req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reason", err)
		return
	}

	res, err := h.Service.Mutate(r.Context(), ledger.MutationRequest{
		BusinessID: tenant(r),
		VariantID:  variantParam(r),
		Change:     change,
		Reason:     reason,
		OrderID:    req.OrderID,
		ActorID:    actorID(r),
		Note:       req.Note,
	})
	if err != nil {
		h.writeLedgerError(w, r, "Mutation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, MutationResultDTO{
		EntryID:     string(res.EntryID),
		PreviousQty: res.PreviousQty,
		NewQty:      res.NewQty,
		ChangeQty:   res.ChangeQty,
	})
}

// Audit replays the variant's entries.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Audit(r.Context(), tenant(r), variantParam(r))
	if err != nil {
		h.writeLedgerError(w, r, "Audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

// QuantityAt answers "what was the quantity at time T".
func (h *Handler) QuantityAt(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'at' is required", nil)
		return
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'at' timestamp, expected RFC3339", err)
		return
	}

	qty, err := h.Service.QuantityAt(r.Context(), tenant(r), variantParam(r), at)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to compute quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, QuantityAtDTO{
		VariantID:    string(variantParam(r)),
		At:           formatTime(at),
		InventoryQty: qty,
	})
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// Deduct records a sale for each variant line of the order.
func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	orderID := chi.URLParam(r, "orderId")
	res, err := h.Service.Deduct(r.Context(), tenant(r), orderID, toOrderLines(req.Lines))
	h.writeOrderResult(w, r, "Deduct failed", err,
		toOrderResultDTO(res.OrderID, res.Applied, res.Failed, res.Skipped))
}

// Restore credits back what the order deducted.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	res, err := h.Service.Restore(r.Context(), tenant(r), orderID)
	h.writeOrderResult(w, r, "Restore failed", err,
		toOrderResultDTO(res.OrderID, res.Applied, res.Failed, res.Skipped))
}

func (h *Handler) writeOrderResult(w http.ResponseWriter, r *http.Request, message string, err error, dto OrderResultDTO) {
	var be *ledger.BatchError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto)
	case errors.As(err, &be):
		writeJSON(w, http.StatusMultiStatus, dto)
	default:
		h.writeLedgerError(w, r, message, err)
	}
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// Reconcile sets absolute quantities by SKU.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]ledger.BulkLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = ledger.BulkLine{SKU: l.SKU, TargetQty: l.TargetQty}
	}
	h.reconcile(w, r, lines, nil)
}

// ReconcileSheet reads target quantities from a sheet range and applies them.
func (h *Handler) ReconcileSheet(w http.ResponseWriter, r *http.Request) {
	if h.Sheets == nil {
		writeError(w, http.StatusNotImplemented, "Sheet reconciliation is not configured", nil)
		return
	}

	var req SheetReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SpreadsheetID == "" || req.Range == "" {
		writeError(w, http.StatusBadRequest, "spreadsheet_id and range are required", nil)
		return
	}

	lines, parseFailures, err := h.Sheets.Lines(r.Context(), req.SpreadsheetID, req.Range)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to read sheet", err)
		return
	}
	h.reconcile(w, r, lines, parseFailures)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, lines []ledger.BulkLine, parseFailures []ledger.BulkFailure) {
	res, err := h.Service.BulkSet(r.Context(), tenant(r), actorID(r), lines)
	if err != nil {
		h.writeLedgerError(w, r, "Reconciliation failed", err)
		return
	}
	res.Failures = append(parseFailures, res.Failures...)

	status := http.StatusOK
	if len(res.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, toReconcileResultDTO(res))
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// LowStock lists low and negative variants.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.LowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid threshold", err)
			return
		}
		threshold = n
	}

	report, err := h.Service.LowStock(r.Context(), tenant(r), threshold)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list low stock", err)
		return
	}
	writeJSON(w, http.StatusOK, LowStockDTO{
		BusinessID: string(report.BusinessID),
		Threshold:  report.Threshold,
		Low:        toVariantDTOs(report.Low),
		Negative:   toVariantDTOs(report.Negative),
	})
}

// History lists entries newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Service.ListHistory(r.Context(), tenant(r), ledger.HistoryFilter{
		VariantID: ledger.VariantID(q.Get("variant_id")),
		ProductID: ledger.ProductID(q.Get("product_id")),
		OrderID:   q.Get("order_id"),
	}, limit)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to list history", err)
		return
	}

	resp := HistoryResponse{Entries: make([]EntryDTO, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidReason),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidLine),
		errors.Is(err, ledger.ErrDuplicateSKU):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrVariantExists),
		errors.Is(err, ledger.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

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

