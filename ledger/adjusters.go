/*
adjusters.go - Order-driven adjusters: Deduct (order placed) and Restore
(order refunded or cancelled)

PER-LINE ATOMICITY:
  Each variant line is one Mutate call that commits on its own. There is no
  transaction spanning the whole order: all-or-nothing order semantics belong
  to the order pipeline, which gets an exact applied/failed report and
  decides whether to compensate.

IDEMPOTENCY:
  Sale and return entries carry an order marker (order, variant, reason)
  that is unique in storage. Before mutating, both adjusters check for the
  marker and skip lines already applied. If two callers race past the check,
  the loser's insert hits the unique marker, its quantity change rolls back
  with it, and the line is reported as skipped.

LINE NORMALIZATION:
  - lines without a variant are skipped (product-level stock is not tracked)
  - lines for the same variant are merged so one order yields one entry per
    variant
  - non-positive quantities fail with ErrInvalidQuantity
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// ORDER LINE SOURCE - external collaborator used by Restore
// =============================================================================

// OrderLineSource loads an order's line items for Restore.
type OrderLineSource interface {
	OrderLines(ctx context.Context, businessID BusinessID, orderID string) ([]OrderLine, error)
}

// OrderLineSourceFunc adapts a function to OrderLineSource.
type OrderLineSourceFunc func(ctx context.Context, businessID BusinessID, orderID string) ([]OrderLine, error)

func (f OrderLineSourceFunc) OrderLines(ctx context.Context, businessID BusinessID, orderID string) ([]OrderLine, error) {
	return f(ctx, businessID, orderID)
}

// LedgerOrderLines derives an order's lines from its sale entries, so only
// lines that were actually deducted are restored.
type LedgerOrderLines struct {
	History HistoryStore
}

func (l LedgerOrderLines) OrderLines(ctx context.Context, businessID BusinessID, orderID string) ([]OrderLine, error) {
	entries, err := l.History.ListEntries(ctx, businessID, HistoryFilter{OrderID: orderID})
	if err != nil {
		return nil, err
	}

	var lines []OrderLine
	for i := len(entries) - 1; i >= 0; i-- { // oldest first
		e := entries[i]
		if e.Reason != ReasonSale {
			continue
		}
		lines = append(lines, OrderLine{ProductID: e.ProductID, VariantID: e.VariantID, Quantity: -e.ChangeQty})
	}
	return lines, nil
}

// =============================================================================
// RESULTS
// =============================================================================

type SkipReason string

const (
	SkipNoVariant      SkipReason = "no_variant"
	SkipAlreadyApplied SkipReason = "already_applied"
)

type LineOutcome struct {
	Line        OrderLine
	EntryID     EntryID
	PreviousQty int64
	NewQty      int64
}

type LineFailure struct {
	Line OrderLine
	Err  error
}

type SkippedLine struct {
	Line   OrderLine
	Reason SkipReason
}

type DeductResult struct {
	OrderID string
	Applied []LineOutcome
	Failed  []LineFailure
	Skipped []SkippedLine
}

type RestoreResult struct {
	OrderID string
	Applied []LineOutcome
	Failed  []LineFailure
	Skipped []SkippedLine
}

func batchErr(orderID string, applied int, failed []LineFailure) error {
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{OrderID: orderID, Applied: applied, Failed: len(failed), First: failed[0].Err}
}

// =============================================================================
// DEDUCT
// =============================================================================

// Deduct records a sale for every variant line of an order. Lines are
// applied sequentially; a failing line does not stop the others. When any
// line fails the result is returned together with a *BatchError.
func (s *Service) Deduct(ctx context.Context, businessID BusinessID, orderID string, lines []OrderLine) (DeductResult, error) {
	res := DeductResult{OrderID: orderID}
	if orderID == "" {
		return res, fmt.Errorf("%w: order id is required", ErrInvalidLine)
	}

	merged, skipped, failed := normalizeLines(lines)
	res.Skipped, res.Failed = skipped, failed

	for _, line := range merged {
		outcome, skip, err := s.applyOrderLine(ctx, businessID, orderID, line, ReasonSale, Delta(-line.Quantity))
		switch {
		case err != nil:
			res.Failed = append(res.Failed, LineFailure{Line: line, Err: err})
		case skip:
			res.Skipped = append(res.Skipped, SkippedLine{Line: line, Reason: SkipAlreadyApplied})
		default:
			res.Applied = append(res.Applied, outcome)
		}
	}

	s.logger.Info("order deducted",
		zap.String("business_id", string(businessID)),
		zap.String("order_id", orderID),
		zap.Int("applied", len(res.Applied)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))

	return res, batchErr(orderID, len(res.Applied), res.Failed)
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore credits back every variant line of an order. Calling it again for
// the same order reports every line as skipped and changes nothing.
func (s *Service) Restore(ctx context.Context, businessID BusinessID, orderID string) (RestoreResult, error) {
	res := RestoreResult{OrderID: orderID}
	if orderID == "" {
		return res, fmt.Errorf("%w: order id is required", ErrInvalidLine)
	}

	lines, err := s.orders.OrderLines(ctx, businessID, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return res, err
		}
		return res, fmt.Errorf("%w: load order %s: %v", ErrUnavailable, orderID, err)
	}

	merged, skipped, failed := normalizeLines(lines)
	res.Skipped, res.Failed = skipped, failed

	for _, line := range merged {
		outcome, skip, err := s.applyOrderLine(ctx, businessID, orderID, line, ReasonReturn, Delta(line.Quantity))
		switch {
		case err != nil:
			res.Failed = append(res.Failed, LineFailure{Line: line, Err: err})
		case skip:
			s.logger.Info("restore line skipped",
				zap.String("business_id", string(businessID)),
				zap.String("order_id", orderID),
				zap.String("variant_id", string(line.VariantID)),
				zap.String("status", "skipped"))
			res.Skipped = append(res.Skipped, SkippedLine{Line: line, Reason: SkipAlreadyApplied})
		default:
			res.Applied = append(res.Applied, outcome)
		}
	}

	s.logger.Info("order restored",
		zap.String("business_id", string(businessID)),
		zap.String("order_id", orderID),
		zap.Int("applied", len(res.Applied)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))

	return res, batchErr(orderID, len(res.Applied), res.Failed)
}

// applyOrderLine checks the order marker then mutates. skip is true when the
// line was already applied for this order.
func (s *Service) applyOrderLine(ctx context.Context, businessID BusinessID, orderID string, line OrderLine, reason Reason, change Change) (LineOutcome, bool, error) {
	done, err := s.store.HasOrderEntry(ctx, businessID, orderID, line.VariantID, reason)
	if err != nil {
		return LineOutcome{}, false, fmt.Errorf("%w: check order marker: %v", ErrUnavailable, err)
	}
	if done {
		return LineOutcome{}, true, nil
	}

	out, err := s.mutator.Mutate(ctx, MutationRequest{
		BusinessID: businessID,
		VariantID:  line.VariantID,
		Change:     change,
		Reason:     reason,
		OrderID:    orderID,
	})
	if errors.Is(err, ErrDuplicateEntry) {
		return LineOutcome{}, true, nil
	}
	if err != nil {
		s.logger.Warn("order line failed",
			zap.String("business_id", string(businessID)),
			zap.String("order_id", orderID),
			zap.String("variant_id", string(line.VariantID)),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return LineOutcome{}, false, err
	}

	return LineOutcome{
		Line:        line,
		EntryID:     out.EntryID,
		PreviousQty: out.PreviousQty,
		NewQty:      out.NewQty,
	}, false, nil
}

func normalizeLines(lines []OrderLine) (merged []OrderLine, skipped []SkippedLine, failed []LineFailure) {
	index := make(map[VariantID]int)
	for _, line := range lines {
		if line.VariantID == "" {
			skipped = append(skipped, SkippedLine{Line: line, Reason: SkipNoVariant})
			continue
		}
		if line.Quantity <= 0 {
			failed = append(failed, LineFailure{
				Line: line,
				Err:  fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidQuantity, line.Quantity),
			})
			continue
		}
		if i, ok := index[line.VariantID]; ok {
			sum, ok := AddQty(merged[i].Quantity, line.Quantity)
			if !ok {
				failed = append(failed, LineFailure{
					Line: line,
					Err:  fmt.Errorf("%w: merged quantity for %s overflows", ErrInvalidQuantity, line.VariantID),
				})
				continue
			}
			merged[i].Quantity = sum
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	return merged, skipped, failed
}
