package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// BulkNote is recorded on every entry written by BulkSet.
const BulkNote = "bulk reconciliation"

// BulkLine is one externally supplied absolute quantity. Row is the 1-based
// source row when the line came from a sheet or file, 0 otherwise.
type BulkLine struct {
	SKU       string
	TargetQty int64
	Row       int
}

type BulkApplied struct {
	SKU         string
	VariantID   VariantID
	EntryID     EntryID
	PreviousQty int64
	NewQty      int64
}

type BulkFailure struct {
	SKU string
	Row int
	Err error
}

type BulkResult struct {
	SuccessCount int
	Applied      []BulkApplied
	Failures     []BulkFailure
}

// BulkSet sets absolute quantities by SKU. Every line stands alone: an
// unknown SKU, a repeated SKU or a failed mutation is recorded as a failure
// and the batch carries on. Applied lines are never rolled back.
func (s *Service) BulkSet(ctx context.Context, businessID BusinessID, actorID string, lines []BulkLine) (BulkResult, error) {
	var res BulkResult
	if businessID == "" {
		return res, fmt.Errorf("%w: business is required", ErrInvalidLine)
	}

	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		fail := func(err error) {
			res.Failures = append(res.Failures, BulkFailure{SKU: sku, Row: line.Row, Err: err})
		}

		if sku == "" {
			fail(fmt.Errorf("%w: sku is required", ErrInvalidLine))
			continue
		}
		if seen[sku] {
			fail(fmt.Errorf("%w: %s", ErrDuplicateSKU, sku))
			continue
		}
		seen[sku] = true

		variant, err := s.store.GetVariantBySKU(ctx, businessID, sku)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				err = fmt.Errorf("%w: resolve sku: %v", ErrUnavailable, err)
			}
			fail(err)
			continue
		}

		out, err := s.mutator.Mutate(ctx, MutationRequest{
			BusinessID: businessID,
			VariantID:  variant.VariantID,
			Change:     SetTo(line.TargetQty),
			Reason:     ReasonAdjustment,
			ActorID:    actorID,
			Note:       BulkNote,
		})
		if err != nil {
			fail(err)
			continue
		}

		res.SuccessCount++
		res.Applied = append(res.Applied, BulkApplied{
			SKU:         sku,
			VariantID:   variant.VariantID,
			EntryID:     out.EntryID,
			PreviousQty: out.PreviousQty,
			NewQty:      out.NewQty,
		})
	}

	s.logger.Info("bulk reconciliation finished",
		zap.String("business_id", string(businessID)),
		zap.String("actor_id", actorID),
		zap.Int("lines", len(lines)),
		zap.Int("applied", res.SuccessCount),
		zap.Int("failed", len(res.Failures)))

	return res, nil
}
