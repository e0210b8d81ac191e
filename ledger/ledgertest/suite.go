// Package ledgertest holds the conformance suite every ledger.Store
// implementation runs, plus shared fixtures.
package ledgertest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
)

const (
	Business ledger.BusinessID = "biz-1"
	Product  ledger.ProductID  = "prod-1"
)

// Epoch is the fixed clock used by fixtures.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewVariant returns a variant fixture in Business.
func NewVariant(id ledger.VariantID, sku string, qty int64) ledger.Variant {
	return ledger.Variant{
		BusinessID:   Business,
		VariantID:    id,
		ProductID:    Product,
		SKU:          sku,
		InventoryQty: qty,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// Draft returns an entry draft with a unique id.
func Draft(variantID ledger.VariantID, reason ledger.Reason, orderID string) ledger.EntryDraft {
	draftMu.Lock()
	defer draftMu.Unlock()
	draftSeq++
	return ledger.EntryDraft{
		ID:         ledger.EntryID(fmt.Sprintf("entry-%d", draftSeq)),
		BusinessID: Business,
		VariantID:  variantID,
		Reason:     reason,
		OrderID:    orderID,
		CreatedAt:  Epoch.Add(time.Duration(draftSeq) * time.Second),
	}
}

var (
	draftMu  sync.Mutex
	draftSeq int
)

// RunStoreSuite runs the contract tests against stores built by newStore.
// Each subtest gets a fresh store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("CreateAndGetVariant", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateVariant", func(t *testing.T) { testDuplicateVariant(t, newStore(t)) })
	t.Run("ApplyDelta", func(t *testing.T) { testApplyDelta(t, newStore(t)) })
	t.Run("ApplyDeltaInsufficient", func(t *testing.T) { testApplyDeltaInsufficient(t, newStore(t)) })
	t.Run("ApplyDeltaOverflow", func(t *testing.T) { testApplyDeltaOverflow(t, newStore(t)) })
	t.Run("CompareAndSet", func(t *testing.T) { testCompareAndSet(t, newStore(t)) })
	t.Run("OrderMarkerUnique", func(t *testing.T) { testOrderMarkerUnique(t, newStore(t)) })
	t.Run("ListEntries", func(t *testing.T) { testListEntries(t, newStore(t)) })
	t.Run("DeleteKeepsHistory", func(t *testing.T) { testDeleteKeepsHistory(t, newStore(t)) })
	t.Run("ListAtOrBelow", func(t *testing.T) { testListAtOrBelow(t, newStore(t)) })
	t.Run("ConcurrentDeltas", func(t *testing.T) { testConcurrentDeltas(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "SKU-1", 10)))

	got, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.InventoryQty)
	assert.Equal(t, "SKU-1", got.SKU)
	assert.Equal(t, Product, got.ProductID)
	assert.True(t, got.CreatedAt.Equal(Epoch))

	bySKU, err := s.GetVariantBySKU(ctx, Business, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.VariantID("v1"), bySKU.VariantID)

	_, err = s.GetVariant(ctx, Business, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = s.GetVariant(ctx, "other-biz", "v1")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "variants are scoped by business")

	_, err = s.GetVariantBySKU(ctx, Business, "SKU-404")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	businesses, err := s.Businesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.BusinessID{Business}, businesses)
}

func testDuplicateVariant(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "SKU-1", 10)))

	err := s.CreateVariant(ctx, NewVariant("v1", "SKU-2", 0))
	assert.ErrorIs(t, err, ledger.ErrVariantExists)

	err = s.CreateVariant(ctx, NewVariant("v2", "SKU-1", 0))
	assert.ErrorIs(t, err, ledger.ErrVariantExists, "sku is unique per business")

	// Empty SKUs never collide.
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v3", "", 0)))
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v4", "", 0)))
}

func testApplyDelta(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 10)))

	d := Draft("v1", ledger.ReasonSale, "order-1")
	e, err := s.ApplyDelta(ctx, d, -3, false)
	require.NoError(t, err)
	assert.Equal(t, d.ID, e.ID)
	assert.Equal(t, int64(10), e.PreviousQty)
	assert.Equal(t, int64(7), e.NewQty)
	assert.Equal(t, int64(-3), e.ChangeQty)
	assert.Equal(t, Product, e.ProductID)
	assert.Equal(t, "order-1", e.OrderID)
	assert.Positive(t, e.Seq)

	e2, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonRestock, ""), 5, true)
	require.NoError(t, err)
	assert.Greater(t, e2.Seq, e.Seq)
	assert.Equal(t, int64(7), e2.PreviousQty)

	v, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.InventoryQty)
	assert.Equal(t, int64(2), v.Version)

	_, err = s.ApplyDelta(ctx, Draft("missing", ledger.ReasonRestock, ""), 1, true)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testApplyDeltaInsufficient(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 2)))

	_, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, "order-1"), -3, false)
	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.Available)
	assert.Equal(t, int64(-1), ise.Resulting)

	// Nothing was written, and the marker was not consumed.
	entries, err := s.VariantEntries(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	done, err := s.HasOrderEntry(ctx, Business, "order-1", "v1", ledger.ReasonSale)
	require.NoError(t, err)
	assert.False(t, done)

	// The same delta is allowed when the policy permits negatives.
	e, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonDamage, ""), -3, true)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), e.NewQty)
}

func testApplyDeltaOverflow(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("high", "", math.MaxInt64-1)))
	require.NoError(t, s.CreateVariant(ctx, NewVariant("low", "", math.MinInt64+1)))

	_, err := s.ApplyDelta(ctx, Draft("high", ledger.ReasonRestock, ""), 5, true)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	_, err = s.ApplyDelta(ctx, Draft("low", ledger.ReasonDamage, ""), -5, true)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	// Neither row moved and nothing was recorded.
	for id, want := range map[ledger.VariantID]int64{"high": math.MaxInt64 - 1, "low": math.MinInt64 + 1} {
		v, err := s.GetVariant(ctx, Business, id)
		require.NoError(t, err)
		assert.Equal(t, want, v.InventoryQty, id)
		entries, err := s.VariantEntries(ctx, Business, id)
		require.NoError(t, err)
		assert.Empty(t, entries, id)
	}

	// The largest delta that still fits is applied.
	e, err := s.ApplyDelta(ctx, Draft("high", ledger.ReasonRestock, ""), 1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), e.NewQty)
}

func testCompareAndSet(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 10)))

	stale, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)

	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, ""), -1, false)
	require.NoError(t, err)

	_, err = s.CompareAndSet(ctx, Draft("v1", ledger.ReasonCorrection, ""), stale, 50)
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)

	fresh, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)
	e, err := s.CompareAndSet(ctx, Draft("v1", ledger.ReasonCorrection, ""), fresh, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(9), e.PreviousQty)
	assert.Equal(t, int64(50), e.NewQty)
	assert.Equal(t, int64(41), e.ChangeQty)

	_, err = s.CompareAndSet(ctx, Draft("missing", ledger.ReasonCorrection, ""), fresh, 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testOrderMarkerUnique(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 10)))

	_, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonReturn, "order-1"), 2, true)
	require.NoError(t, err)

	done, err := s.HasOrderEntry(ctx, Business, "order-1", "v1", ledger.ReasonReturn)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonReturn, "order-1"), 2, true)
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntry)

	// The rejected insert rolled back its quantity change.
	v, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.InventoryQty)

	// Sale and return for the same order are distinct markers.
	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, "order-1"), -1, false)
	require.NoError(t, err)

	// Adjustments carry no marker even when an order id is present.
	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonAdjustment, "order-1"), 1, true)
	require.NoError(t, err)
	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonAdjustment, "order-1"), 1, true)
	require.NoError(t, err)
}

func testListEntries(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 10)))
	other := NewVariant("v2", "", 10)
	other.ProductID = "prod-2"
	require.NoError(t, s.CreateVariant(ctx, other))

	_, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, "order-1"), -1, false)
	require.NoError(t, err)
	_, err = s.ApplyDelta(ctx, Draft("v2", ledger.ReasonSale, "order-1"), -2, false)
	require.NoError(t, err)
	_, err = s.ApplyDelta(ctx, Draft("v1", ledger.ReasonRestock, ""), 4, true)
	require.NoError(t, err)

	all, err := s.ListEntries(ctx, Business, ledger.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].Seq, all[1].Seq, "newest first")
	assert.Greater(t, all[1].Seq, all[2].Seq)

	byVariant, err := s.ListEntries(ctx, Business, ledger.HistoryFilter{VariantID: "v1"})
	require.NoError(t, err)
	assert.Len(t, byVariant, 2)

	byProduct, err := s.ListEntries(ctx, Business, ledger.HistoryFilter{ProductID: "prod-2"})
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, ledger.VariantID("v2"), byProduct[0].VariantID)

	byOrder, err := s.ListEntries(ctx, Business, ledger.HistoryFilter{OrderID: "order-1"})
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	limited, err := s.ListEntries(ctx, Business, ledger.HistoryFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, all[0].ID, limited[0].ID)

	asc, err := s.VariantEntries(ctx, Business, "v1")
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Less(t, asc[0].Seq, asc[1].Seq, "oldest first")
	assert.Equal(t, asc[0].NewQty, asc[1].PreviousQty)

	foreign, err := s.ListEntries(ctx, "other-biz", ledger.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func testDeleteKeepsHistory(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "SKU-1", 10)))
	_, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, "order-1"), -1, false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteVariant(ctx, Business, "v1"))
	assert.ErrorIs(t, s.DeleteVariant(ctx, Business, "v1"), ledger.ErrNotFound)

	_, err = s.GetVariant(ctx, Business, "v1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	entries, err := s.VariantEntries(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The SKU is free again.
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v2", "SKU-1", 0)))
}

func testListAtOrBelow(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	for _, v := range []ledger.Variant{
		NewVariant("a", "", 5),
		NewVariant("b", "", -2),
		NewVariant("c", "", 0),
		NewVariant("d", "", 6),
		NewVariant("e", "", -7),
	} {
		require.NoError(t, s.CreateVariant(ctx, v))
	}

	got, err := s.ListAtOrBelow(ctx, Business, 5)
	require.NoError(t, err)
	assert.Equal(t, []ledger.VariantID{"e", "b", "c", "a"}, variantIDs(got))

	negative, err := s.ListAtOrBelow(ctx, Business, -1)
	require.NoError(t, err)
	assert.Equal(t, []ledger.VariantID{"e", "b"}, variantIDs(negative))
}

func testConcurrentDeltas(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateVariant(ctx, NewVariant("v1", "", 100)))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ApplyDelta(ctx, Draft("v1", ledger.ReasonSale, fmt.Sprintf("order-%d", i)), -3, false)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	v, err := s.GetVariant(ctx, Business, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(100-3*workers), v.InventoryQty, "no lost updates")

	entries, err := s.VariantEntries(ctx, Business, "v1")
	require.NoError(t, err)
	require.Len(t, entries, workers)
	assert.Equal(t, v.InventoryQty, SumChanges(100, entries))
	AssertChain(t, 100, entries)
}

// SumChanges returns start plus the sum of all ChangeQty.
func SumChanges(start int64, entries []ledger.Entry) int64 {
	for _, e := range entries {
		start += e.ChangeQty
	}
	return start
}

// AssertChain checks that entries (oldest first) chain without gaps from start.
func AssertChain(t *testing.T, start int64, entries []ledger.Entry) {
	t.Helper()
	running := start
	for _, e := range entries {
		assert.Equal(t, running, e.PreviousQty, "entry %s previous_qty", e.ID)
		assert.Equal(t, e.PreviousQty+e.ChangeQty, e.NewQty, "entry %s arithmetic", e.ID)
		running = e.NewQty
	}
}

func variantIDs(vs []ledger.Variant) []ledger.VariantID {
	out := make([]ledger.VariantID, len(vs))
	for i, v := range vs {
		out[i] = v.VariantID
	}
	return out
}
