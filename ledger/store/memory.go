// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory stands in for a database: each method is one atomic step under the
// store's own mutex, the same guarantee a single SQL transaction gives.
type Memory struct {
	mu       sync.RWMutex
	variants map[variantKey]ledger.Variant
	skus     map[skuKey]ledger.VariantID
	entries  []ledger.Entry // append-only, Seq order
	markers  map[string]bool
	seq      int64

	failures []error // injected errors for the next mutation primitives
}

type variantKey struct {
	BusinessID ledger.BusinessID
	VariantID  ledger.VariantID
}

type skuKey struct {
	BusinessID ledger.BusinessID
	SKU        string
}

var _ ledger.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		variants: make(map[variantKey]ledger.Variant),
		skus:     make(map[skuKey]ledger.VariantID),
		markers:  make(map[string]bool),
	}
}

// FailNextWrites makes the next len(errs) calls to ApplyDelta or
// CompareAndSet return the given errors without touching any state.
func (m *Memory) FailNextWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *Memory) injectedLocked() error {
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

// =============================================================================
// VARIANTS
// =============================================================================

func (m *Memory) CreateVariant(ctx context.Context, v ledger.Variant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := variantKey{v.BusinessID, v.VariantID}
	if _, ok := m.variants[k]; ok {
		return fmt.Errorf("%w: variant %s", ledger.ErrVariantExists, v.VariantID)
	}
	if v.SKU != "" {
		sk := skuKey{v.BusinessID, v.SKU}
		if _, ok := m.skus[sk]; ok {
			return fmt.Errorf("%w: sku %s", ledger.ErrVariantExists, v.SKU)
		}
		m.skus[sk] = v.VariantID
	}
	m.variants[k] = v
	return nil
}

func (m *Memory) GetVariant(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) (ledger.Variant, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Variant{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.variants[variantKey{businessID, variantID}]
	if !ok {
		return ledger.Variant{}, fmt.Errorf("%w: variant %s", ledger.ErrNotFound, variantID)
	}
	return v, nil
}

func (m *Memory) GetVariantBySKU(ctx context.Context, businessID ledger.BusinessID, sku string) (ledger.Variant, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Variant{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.skus[skuKey{businessID, sku}]
	if !ok {
		return ledger.Variant{}, fmt.Errorf("%w: sku %s", ledger.ErrNotFound, sku)
	}
	return m.variants[variantKey{businessID, id}], nil
}

func (m *Memory) DeleteVariant(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := variantKey{businessID, variantID}
	v, ok := m.variants[k]
	if !ok {
		return fmt.Errorf("%w: variant %s", ledger.ErrNotFound, variantID)
	}
	delete(m.variants, k)
	if v.SKU != "" {
		delete(m.skus, skuKey{businessID, v.SKU})
	}
	return nil
}

func (m *Memory) ListAtOrBelow(ctx context.Context, businessID ledger.BusinessID, threshold int64) ([]ledger.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Variant
	for k, v := range m.variants {
		if k.BusinessID == businessID && v.InventoryQty <= threshold {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InventoryQty != out[j].InventoryQty {
			return out[i].InventoryQty < out[j].InventoryQty
		}
		return out[i].VariantID < out[j].VariantID
	})
	return out, nil
}

func (m *Memory) Businesses(ctx context.Context) ([]ledger.BusinessID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ledger.BusinessID]bool)
	var out []ledger.BusinessID
	for k := range m.variants {
		if !seen[k.BusinessID] {
			seen[k.BusinessID] = true
			out = append(out, k.BusinessID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// MUTATION PRIMITIVES
// =============================================================================

func (m *Memory) ApplyDelta(ctx context.Context, d ledger.EntryDraft, delta int64, allowNegative bool) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injectedLocked(); err != nil {
		return ledger.Entry{}, err
	}

	k := variantKey{d.BusinessID, d.VariantID}
	v, ok := m.variants[k]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: variant %s", ledger.ErrNotFound, d.VariantID)
	}
	next, ok := ledger.AddQty(v.InventoryQty, delta)
	if !ok {
		return ledger.Entry{}, ledger.OverflowError(d.VariantID, v.InventoryQty, delta)
	}
	if !allowNegative && next < 0 {
		return ledger.Entry{}, &ledger.InsufficientStockError{VariantID: d.VariantID, Available: v.InventoryQty, Resulting: next}
	}
	return m.writeLocked(k, v, d, next)
}

func (m *Memory) CompareAndSet(ctx context.Context, d ledger.EntryDraft, expected ledger.Variant, target int64) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injectedLocked(); err != nil {
		return ledger.Entry{}, err
	}

	k := variantKey{d.BusinessID, d.VariantID}
	v, ok := m.variants[k]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: variant %s", ledger.ErrNotFound, d.VariantID)
	}
	if v.Version != expected.Version {
		return ledger.Entry{}, ledger.ErrVersionConflict
	}
	return m.writeLocked(k, v, d, target)
}

// writeLocked updates the row and appends the entry as one step.
func (m *Memory) writeLocked(k variantKey, v ledger.Variant, d ledger.EntryDraft, next int64) (ledger.Entry, error) {
	marker := d.Marker()
	if marker != "" {
		mk := string(d.BusinessID) + "|" + marker
		if m.markers[mk] {
			return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, marker)
		}
		m.markers[mk] = true
	}

	previous := v.InventoryQty
	v.InventoryQty = next
	v.Version++
	v.UpdatedAt = d.CreatedAt
	m.variants[k] = v

	m.seq++
	e := d.Complete(v.ProductID, previous, next)
	e.Seq = m.seq
	m.entries = append(m.entries, e)
	return e, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m *Memory) ListEntries(ctx context.Context, businessID ledger.BusinessID, f ledger.HistoryFilter) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.BusinessID != businessID ||
			(f.VariantID != "" && e.VariantID != f.VariantID) ||
			(f.ProductID != "" && e.ProductID != f.ProductID) ||
			(f.OrderID != "" && e.OrderID != f.OrderID) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) VariantEntries(ctx context.Context, businessID ledger.BusinessID, variantID ledger.VariantID) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.VariantID == variantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) HasOrderEntry(ctx context.Context, businessID ledger.BusinessID, orderID string, variantID ledger.VariantID, reason ledger.Reason) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	marker := ledger.OrderMarker(orderID, variantID, reason)
	if marker == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markers[string(businessID)+"|"+marker], nil
}
