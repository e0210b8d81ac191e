/*
query.go - Read-only projections over the ledger

  ListBelowThreshold  variants with 0 <= qty <= threshold, most urgent first
  ListNegative        variants below zero, most negative first
  LowStock            both of the above in one report
  ListHistory         entries newest first, by variant / product / order
  QuantityAt          point-in-time quantity from stored entries
  Audit               replay check of a variant's entry chain

History answers come from stored previousQty/newQty values, never from
recomputation, so they survive deletion of the variant row.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// =============================================================================
// LOW STOCK
// =============================================================================

// LowStockReport separates the negative category from the low one.
type LowStockReport struct {
	BusinessID BusinessID
	Threshold  int64
	Low        []Variant // 0 <= qty <= threshold, ascending
	Negative   []Variant // qty < 0, ascending
}

func (r LowStockReport) Empty() bool { return len(r.Low) == 0 && len(r.Negative) == 0 }

// ListBelowThreshold returns variants with 0 <= InventoryQty <= threshold
// ordered by quantity ascending.
func (s *Service) ListBelowThreshold(ctx context.Context, businessID BusinessID, threshold int64) ([]Variant, error) {
	report, err := s.LowStock(ctx, businessID, threshold)
	if err != nil {
		return nil, err
	}
	return report.Low, nil
}

// ListNegative returns variants with InventoryQty < 0, most negative first.
func (s *Service) ListNegative(ctx context.Context, businessID BusinessID) ([]Variant, error) {
	variants, err := s.store.ListAtOrBelow(ctx, businessID, -1)
	if err != nil {
		return nil, fmt.Errorf("list negative stock: %w", err)
	}
	return variants, nil
}

// LowStock runs one scan and splits it into the low and negative categories.
func (s *Service) LowStock(ctx context.Context, businessID BusinessID, threshold int64) (LowStockReport, error) {
	report := LowStockReport{BusinessID: businessID, Threshold: threshold}
	if threshold < 0 {
		return report, fmt.Errorf("%w: threshold must be >= 0, got %d", ErrInvalidQuantity, threshold)
	}

	variants, err := s.store.ListAtOrBelow(ctx, businessID, threshold)
	if err != nil {
		return report, fmt.Errorf("list low stock: %w", err)
	}
	for _, v := range variants {
		if v.InventoryQty < 0 {
			report.Negative = append(report.Negative, v)
		} else {
			report.Low = append(report.Low, v)
		}
	}
	return report, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// ListHistory returns entries newest first. A zero filter lists the whole
// tenant. limit <= 0 means DefaultHistoryLimit; it is capped at MaxHistoryLimit.
func (s *Service) ListHistory(ctx context.Context, businessID BusinessID, filter HistoryFilter, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	filter.Limit = limit

	entries, err := s.store.ListEntries(ctx, businessID, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// QuantityAt reconstructs the quantity a variant had at the given instant.
// Before the first entry it is that entry's PreviousQty; with no entries at
// all it is the current quantity.
func (s *Service) QuantityAt(ctx context.Context, businessID BusinessID, variantID VariantID, at time.Time) (int64, error) {
	entries, err := s.store.VariantEntries(ctx, businessID, variantID)
	if err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		v, err := s.store.GetVariant(ctx, businessID, variantID)
		if err != nil {
			return 0, err
		}
		return v.InventoryQty, nil
	}

	qty := entries[0].PreviousQty
	for _, e := range entries {
		if e.CreatedAt.After(at) {
			break
		}
		qty = e.NewQty
	}
	return qty, nil
}

// =============================================================================
// AUDIT - Replay check
// =============================================================================

type AuditBreak struct {
	Seq     int64
	EntryID EntryID
	Problem string
}

type AuditReport struct {
	BusinessID BusinessID
	VariantID  VariantID
	Entries    int
	StartQty   int64
	EndQty     int64
	CurrentQty int64
	Deleted    bool // variant row no longer exists; CurrentQty is not checked
	Breaks     []AuditBreak
}

func (r AuditReport) Consistent() bool { return len(r.Breaks) == 0 }

// Audit replays a variant's entries in Seq order and checks that each
// PreviousQty equals the prior NewQty, that NewQty = PreviousQty + ChangeQty,
// and that the last NewQty equals the current quantity.
func (s *Service) Audit(ctx context.Context, businessID BusinessID, variantID VariantID) (AuditReport, error) {
	report := AuditReport{BusinessID: businessID, VariantID: variantID}

	current, err := s.store.GetVariant(ctx, businessID, variantID)
	switch {
	case errors.Is(err, ErrNotFound):
		report.Deleted = true
	case err != nil:
		return report, err
	default:
		report.CurrentQty = current.InventoryQty
	}

	entries, err := s.store.VariantEntries(ctx, businessID, variantID)
	if err != nil {
		return report, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		if report.Deleted {
			return report, fmt.Errorf("%w: variant %s", ErrNotFound, variantID)
		}
		report.StartQty, report.EndQty = report.CurrentQty, report.CurrentQty
		return report, nil
	}

	report.Entries = len(entries)
	report.StartQty = entries[0].PreviousQty

	running := report.StartQty
	for _, e := range entries {
		if e.PreviousQty != running {
			report.Breaks = append(report.Breaks, AuditBreak{
				Seq: e.Seq, EntryID: e.ID,
				Problem: fmt.Sprintf("previous_qty %d, expected %d", e.PreviousQty, running),
			})
		}
		if e.PreviousQty+e.ChangeQty != e.NewQty {
			report.Breaks = append(report.Breaks, AuditBreak{
				Seq: e.Seq, EntryID: e.ID,
				Problem: fmt.Sprintf("%d %+d != %d", e.PreviousQty, e.ChangeQty, e.NewQty),
			})
		}
		running = e.NewQty
	}
	report.EndQty = running

	if !report.Deleted && report.EndQty != report.CurrentQty {
		last := entries[len(entries)-1]
		report.Breaks = append(report.Breaks, AuditBreak{
			Seq: last.Seq, EntryID: last.ID,
			Problem: fmt.Sprintf("last new_qty %d, current inventory_qty %d", report.EndQty, report.CurrentQty),
		})
	}
	return report, nil
}
