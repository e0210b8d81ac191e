/*
store.go - Persistence interface for variants and the inventory history

PURPOSE:
  Defines the boundary between the ledger logic and the database. All mutual
  exclusion lives behind this interface: each mutation primitive is a single
  atomic conditional write of the variant row paired with the history insert.
  No in-process lock is held across requests, so any number of stateless
  processes can share one database.

MUTATION PRIMITIVES:
  ApplyDelta:     increment-by-delta-and-return-new-value. No read step.
  CompareAndSet:  absolute write guarded by the version read earlier.

  Both either commit the variant row AND exactly one history row, or
  nothing. They are called only by the Mutator.

APPEND-ONLY CONTRACT:
  There is no method that updates or deletes a history row. DeleteVariant
  removes the variant row only; its history is retained for audit.

IMPLEMENTATIONS:
  - store/sqlite: SQLite (WAL, immediate transactions, UPDATE ... RETURNING)
  - store/mysql:  MySQL/InnoDB
  - ledger/store: in-memory, for tests

SEE ALSO:
  - mutator.go: the only caller of ApplyDelta/CompareAndSet
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	VariantStore
	HistoryStore

	// ApplyDelta atomically adds delta to the variant's quantity and appends
	// the entry. When allowNegative is false the update only happens if the
	// result stays >= 0, otherwise *InsufficientStockError is returned.
	// Returns ErrNotFound, ErrDuplicateEntry (marker taken, nothing applied)
	// or ErrVersionConflict (storage busy, safe to retry).
	ApplyDelta(ctx context.Context, draft EntryDraft, delta int64, allowNegative bool) (Entry, error)

	// CompareAndSet writes target only if the row still has expected.Version,
	// and appends the entry with previousQty = expected.InventoryQty.
	// Returns ErrNotFound, ErrDuplicateEntry or ErrVersionConflict.
	CompareAndSet(ctx context.Context, draft EntryDraft, expected Variant, target int64) (Entry, error)
}

// VariantStore holds the stock rows.
type VariantStore interface {
	// CreateVariant inserts a variant with its initial quantity.
	// Returns ErrVariantExists on id or SKU collision within the tenant.
	CreateVariant(ctx context.Context, v Variant) error

	GetVariant(ctx context.Context, businessID BusinessID, variantID VariantID) (Variant, error)
	GetVariantBySKU(ctx context.Context, businessID BusinessID, sku string) (Variant, error)

	// DeleteVariant removes the stock row. History rows are untouched.
	DeleteVariant(ctx context.Context, businessID BusinessID, variantID VariantID) error

	// ListAtOrBelow returns variants with InventoryQty <= threshold ordered by
	// quantity ascending, then variant id.
	ListAtOrBelow(ctx context.Context, businessID BusinessID, threshold int64) ([]Variant, error)

	// Businesses lists tenants that own at least one variant.
	Businesses(ctx context.Context) ([]BusinessID, error)
}

// HistoryStore is the read side of the append-only history.
type HistoryStore interface {
	// ListEntries returns entries matching filter, newest first (Seq desc),
	// at most filter.Limit rows (0 = unlimited).
	ListEntries(ctx context.Context, businessID BusinessID, filter HistoryFilter) ([]Entry, error)

	// VariantEntries returns every entry of a variant in replay order (Seq asc).
	VariantEntries(ctx context.Context, businessID BusinessID, variantID VariantID) ([]Entry, error)

	// HasOrderEntry reports whether an entry with the order marker exists.
	HasOrderEntry(ctx context.Context, businessID BusinessID, orderID string, variantID VariantID, reason Reason) (bool, error)
}
