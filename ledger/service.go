/*
service.go - Ledger service: the operation surface used by the order pipeline
and the admin layer

OPERATIONS:
  Mutate             single admin change (delegates to Mutator)
  Deduct / Restore   order-driven adjusters (adjusters.go)
  BulkSet            bulk reconciliation by SKU (reconcile.go)
  ListBelowThreshold / ListNegative / LowStock / ListHistory / QuantityAt / Audit
                     read-only projections (query.go)
  CreateVariant / GetVariant / DeleteVariant
                     variant administration

Every mutation goes through the Mutator. The service never writes a quantity.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Service wires the Mutator, the Store read side and the order collaborator.
type Service struct {
	store   Store
	mutator *Mutator
	orders  OrderLineSource
	logger  *zap.Logger
	clock   func() time.Time
}

// NewService builds a service. A nil orders source defaults to deriving
// restore lines from the order's own sale entries.
func NewService(store Store, mutator *Mutator, orders OrderLineSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if orders == nil {
		orders = LedgerOrderLines{History: store}
	}
	return &Service{
		store:   store,
		mutator: mutator,
		orders:  orders,
		logger:  logger,
		clock:   mutator.cfg.Clock,
	}
}

// Mutate applies a single change. See Mutator.Mutate.
func (s *Service) Mutate(ctx context.Context, req MutationRequest) (MutationResult, error) {
	return s.mutator.Mutate(ctx, req)
}

// =============================================================================
// VARIANT ADMINISTRATION
// =============================================================================

// CreateVariant registers a variant with its initial quantity. No ledger
// entry is written; the first entry's PreviousQty is the initial quantity.
func (s *Service) CreateVariant(ctx context.Context, v Variant) (Variant, error) {
	v.SKU = strings.TrimSpace(v.SKU)
	if v.BusinessID == "" || v.VariantID == "" || v.ProductID == "" {
		return Variant{}, fmt.Errorf("%w: business, product and variant are required", ErrInvalidLine)
	}
	now := s.clock()
	v.Version = 0
	v.CreatedAt = now
	v.UpdatedAt = now

	if err := s.store.CreateVariant(ctx, v); err != nil {
		return Variant{}, err
	}
	s.logger.Info("variant created",
		zap.String("business_id", string(v.BusinessID)),
		zap.String("variant_id", string(v.VariantID)),
		zap.String("sku", v.SKU),
		zap.Int64("inventory_qty", v.InventoryQty))
	return v, nil
}

func (s *Service) GetVariant(ctx context.Context, businessID BusinessID, variantID VariantID) (Variant, error) {
	return s.store.GetVariant(ctx, businessID, variantID)
}

// DeleteVariant removes the stock row; the variant's history is retained.
func (s *Service) DeleteVariant(ctx context.Context, businessID BusinessID, variantID VariantID) error {
	if err := s.store.DeleteVariant(ctx, businessID, variantID); err != nil {
		return err
	}
	s.logger.Info("variant deleted",
		zap.String("business_id", string(businessID)),
		zap.String("variant_id", string(variantID)))
	return nil
}

// Businesses lists tenants with at least one variant.
func (s *Service) Businesses(ctx context.Context) ([]BusinessID, error) {
	return s.store.Businesses(ctx)
}
