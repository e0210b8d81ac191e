/*
Package ledger provides the inventory ledger and stock consistency engine.

PURPOSE:
  Tracks per-variant stock levels for each tenant (business) and keeps an
  append-only history of every change. Every write to a variant's quantity
  goes through the Mutator, which pairs the quantity change with exactly one
  ledger entry inside a single storage transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Variant: the unit of stock tracking (one scalar quantity per tenant)
  - Entry: an immutable record of one quantity change
  - Change: a relative (delta) or absolute (set-to) mutation
  - OrderLine: a (product, variant, quantity) triple from the order pipeline

DESIGN PRINCIPLES:
  1. One write path: only the Store mutation primitives change InventoryQty,
     and only the Mutator calls them.
  2. Immutability: entries are never updated or deleted.
  3. Replayability: entries for a variant are totally ordered by Seq and
     previousQty/newQty chain without gaps.
  4. Tenant isolation: every read and write is scoped by BusinessID.

SEE ALSO:
  - store.go: persistence contract
  - mutator.go: the atomic read-modify-write primitive
  - service.go: order adjusters, bulk reconciliation, queries
*/
package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BusinessID string
type VariantID string
type ProductID string
type EntryID string

// =============================================================================
// VARIANT - Stock-tracked configuration of a product
// =============================================================================

// Variant is a read snapshot of a stock row.
// InventoryQty and Version are owned by the store; callers cannot write them
// except through Mutator.Mutate.
type Variant struct {
	BusinessID   BusinessID
	VariantID    VariantID
	ProductID    ProductID
	SKU          string
	InventoryQty int64
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// ENTRY - One immutable fact about a single mutation
// =============================================================================

// Entry is a ledger row. NewQty == PreviousQty + ChangeQty always holds.
// Seq is assigned by the store and defines the replay order.
type Entry struct {
	ID          EntryID
	Seq         int64
	BusinessID  BusinessID
	VariantID   VariantID
	ProductID   ProductID
	PreviousQty int64
	NewQty      int64
	ChangeQty   int64
	Reason      Reason
	Note        string
	OrderID     string
	ActorID     string
	CreatedAt   time.Time
}

// EntryDraft carries the caller-side fields of an entry. The store fills in
// ProductID, Seq and the quantities from the row it actually updated.
type EntryDraft struct {
	ID         EntryID
	BusinessID BusinessID
	VariantID  VariantID
	Reason     Reason
	Note       string
	OrderID    string
	ActorID    string
	CreatedAt  time.Time
}

// Marker returns the idempotency marker for order-driven entries, or "" when
// the entry is not subject to the one-per-(order, variant, reason) rule.
func (d EntryDraft) Marker() string {
	return OrderMarker(d.OrderID, d.VariantID, d.Reason)
}

// OrderMarker builds the uniqueness key stored alongside sale/return entries.
func OrderMarker(orderID string, variantID VariantID, reason Reason) string {
	if orderID == "" || (reason != ReasonSale && reason != ReasonReturn) {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s", orderID, variantID, reason)
}

// Complete builds the persisted entry from the draft and the applied quantities.
func (d EntryDraft) Complete(productID ProductID, previousQty, newQty int64) Entry {
	return Entry{
		ID:          d.ID,
		BusinessID:  d.BusinessID,
		VariantID:   d.VariantID,
		ProductID:   productID,
		PreviousQty: previousQty,
		NewQty:      newQty,
		ChangeQty:   newQty - previousQty,
		Reason:      d.Reason,
		Note:        d.Note,
		OrderID:     d.OrderID,
		ActorID:     d.ActorID,
		CreatedAt:   d.CreatedAt,
	}
}

// =============================================================================
// CHANGE - Relative or absolute mutation
// =============================================================================

type ChangeMode int

const (
	ModeRelative ChangeMode = iota
	ModeAbsolute
)

func (m ChangeMode) String() string {
	if m == ModeAbsolute {
		return "absolute"
	}
	return "relative"
}

// Change is either a delta against the current quantity or a target quantity.
type Change struct {
	Mode  ChangeMode
	Value int64
}

// Delta builds a relative change: newQty = previousQty + n.
func Delta(n int64) Change { return Change{Mode: ModeRelative, Value: n} }

// SetTo builds an absolute change: newQty = n.
func SetTo(n int64) Change { return Change{Mode: ModeAbsolute, Value: n} }

func (c Change) String() string {
	if c.Mode == ModeAbsolute {
		return fmt.Sprintf("set to %d", c.Value)
	}
	return fmt.Sprintf("%+d", c.Value)
}

// =============================================================================
// MUTATION REQUEST / RESULT
// =============================================================================

type MutationRequest struct {
	BusinessID BusinessID
	VariantID  VariantID
	Change     Change
	Reason     Reason
	OrderID    string // set for sale/return
	ActorID    string // set for manual adjustments
	Note       string
}

type MutationResult struct {
	EntryID     EntryID
	PreviousQty int64
	NewQty      int64
	ChangeQty   int64
}

// =============================================================================
// ORDER LINES
// =============================================================================

// OrderLine is supplied by the order pipeline. VariantID is empty for simple
// products without variants; such lines are not stock-tracked here.
type OrderLine struct {
	ProductID ProductID
	VariantID VariantID
	Quantity  int64
}

// HistoryFilter narrows ListHistory. Empty fields are not applied.
type HistoryFilter struct {
	VariantID VariantID
	ProductID ProductID
	OrderID   string
	Limit     int
}
