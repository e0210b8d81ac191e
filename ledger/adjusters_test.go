package ledger_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
)

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestScenario_SaleSaleRestore(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))

			// GIVEN V1 at 10
			f.variant("V1", "", 10)

			// WHEN two orders of 3 are placed
			res, err := f.mutate("V1", ledger.Delta(-3), ledger.ReasonSale, "O1")
			require.NoError(t, err)
			assert.Equal(t, [2]int64{10, 7}, [2]int64{res.PreviousQty, res.NewQty})

			res, err = f.mutate("V1", ledger.Delta(-3), ledger.ReasonSale, "O2")
			require.NoError(t, err)
			assert.Equal(t, [2]int64{7, 4}, [2]int64{res.PreviousQty, res.NewQty})

			// AND O1 is refunded
			restored, err := f.svc.Restore(f.ctx, biz, "O1")
			require.NoError(t, err)
			require.Len(t, restored.Applied, 1)

			// THEN V1 is back at 7 with a return entry 4 -> 7
			assert.Equal(t, int64(7), f.qty("V1"))
			entries := f.entries("V1")
			require.Len(t, entries, 3)
			last := entries[2]
			assert.Equal(t, ledger.ReasonReturn, last.Reason)
			assert.Equal(t, "O1", last.OrderID)
			assert.Equal(t, int64(4), last.PreviousQty)
			assert.Equal(t, int64(7), last.NewQty)

			// AND V1 at 7 is above a threshold of 5 but within a threshold of 7
			low, err := f.svc.ListBelowThreshold(f.ctx, biz, 5)
			require.NoError(t, err)
			assert.Empty(t, low)

			low, err = f.svc.ListBelowThreshold(f.ctx, biz, 7)
			require.NoError(t, err)
			require.Len(t, low, 1)
			assert.Equal(t, ledger.VariantID("V1"), low[0].VariantID)
		})
	}
}

// =============================================================================
// DEDUCT
// =============================================================================

func TestDeduct_AppliesEveryVariantLine(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			f.variant("a", "", 10)
			f.variant("b", "", 5)

			res, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{
				line("a", 2),
				{ProductID: "simple-product", Quantity: 1}, // no variant
				line("b", 1),
				line("a", 3), // merged with the first line
			})
			require.NoError(t, err)

			assert.Len(t, res.Applied, 2)
			require.Len(t, res.Skipped, 1)
			assert.Equal(t, ledger.SkipNoVariant, res.Skipped[0].Reason)
			assert.Empty(t, res.Failed)

			assert.Equal(t, int64(5), f.qty("a"))
			assert.Equal(t, int64(4), f.qty("b"))

			// One entry per (order, variant)
			entries := f.entries("a")
			require.Len(t, entries, 1)
			assert.Equal(t, int64(-5), entries[0].ChangeQty)
			assert.Equal(t, ledger.ReasonSale, entries[0].Reason)
		})
	}
}

func TestDeduct_PartialFailure(t *testing.T) {
	f, _ := newMemoryFixture(t)
	f.variant("a", "", 10)
	f.variant("b", "", 1)

	// GIVEN an order whose second line exceeds stock
	res, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{
		line("a", 2),
		line("b", 3),
		line("missing", 1),
		line("c", 0),
	})

	// THEN the batch reports what was applied and what failed
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPartialFailure)
	var be *ledger.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Applied)
	assert.Equal(t, 3, be.Failed)

	require.Len(t, res.Applied, 1)
	assert.Equal(t, ledger.VariantID("a"), res.Applied[0].Line.VariantID)
	require.Len(t, res.Failed, 3)

	failures := map[ledger.VariantID]error{}
	for _, lf := range res.Failed {
		failures[lf.Line.VariantID] = lf.Err
	}
	assert.ErrorIs(t, failures["b"], ledger.ErrInsufficientStock)
	assert.ErrorIs(t, failures["missing"], ledger.ErrNotFound)
	assert.ErrorIs(t, failures["c"], ledger.ErrInvalidQuantity)

	// AND the applied line stays committed
	assert.Equal(t, int64(8), f.qty("a"))
	assert.Equal(t, int64(1), f.qty("b"))
}

func TestDeduct_MergedQuantityOverflow(t *testing.T) {
	f, _ := newMemoryFixture(t)
	f.variant("a", "", 10)

	// GIVEN two lines for the same variant whose sum exceeds int64
	res, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{
		line("a", 2),
		line("a", math.MaxInt64),
	})

	// THEN the overflowing line fails and the rest is still applied
	require.ErrorIs(t, err, ledger.ErrPartialFailure)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, ledger.ErrInvalidQuantity)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, int64(8), f.qty("a"))
}

func TestDeduct_RetryIsIdempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			f.variant("a", "", 10)
			lines := []ledger.OrderLine{line("a", 4)}

			_, err := f.svc.Deduct(f.ctx, biz, "order-1", lines)
			require.NoError(t, err)

			// WHEN the pipeline retries the same order
			res, err := f.svc.Deduct(f.ctx, biz, "order-1", lines)

			// THEN nothing is applied twice
			require.NoError(t, err)
			assert.Empty(t, res.Applied)
			require.Len(t, res.Skipped, 1)
			assert.Equal(t, ledger.SkipAlreadyApplied, res.Skipped[0].Reason)
			assert.Equal(t, int64(6), f.qty("a"))
			assert.Len(t, f.entries("a"), 1)
		})
	}
}

func TestDeduct_RequiresOrderID(t *testing.T) {
	f, _ := newMemoryFixture(t)
	_, err := f.svc.Deduct(f.ctx, biz, "", []ledger.OrderLine{line("a", 1)})
	assert.ErrorIs(t, err, ledger.ErrInvalidLine)
}

// =============================================================================
// RESTORE
// =============================================================================

func TestRestore_Idempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			f.variant("a", "", 10)
			f.variant("b", "", 10)

			_, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{line("a", 2), line("b", 5)})
			require.NoError(t, err)

			first, err := f.svc.Restore(f.ctx, biz, "order-1")
			require.NoError(t, err)
			assert.Len(t, first.Applied, 2)

			// WHEN Restore is invoked again
			second, err := f.svc.Restore(f.ctx, biz, "order-1")

			// THEN every line is skipped and stock is unchanged
			require.NoError(t, err)
			assert.Empty(t, second.Applied)
			assert.Len(t, second.Skipped, 2)
			for _, s := range second.Skipped {
				assert.Equal(t, ledger.SkipAlreadyApplied, s.Reason)
			}
			assert.Equal(t, int64(10), f.qty("a"))
			assert.Equal(t, int64(10), f.qty("b"))
			assert.Len(t, f.entries("a"), 2)
		})
	}
}

func TestRestore_InverseOfDeduct(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			initial := map[ledger.VariantID]int64{"a": 10, "b": 3, "c": 0}
			for id, qty := range initial {
				f.variant(id, "", qty)
			}

			// GIVEN a deduct where one line fails
			_, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{
				line("a", 4), line("b", 3), line("c", 1),
			})
			require.ErrorIs(t, err, ledger.ErrInsufficientStock)

			// WHEN the order is restored
			res, err := f.svc.Restore(f.ctx, biz, "order-1")
			require.NoError(t, err)

			// THEN only deducted lines are credited and every variant is back
			assert.Len(t, res.Applied, 2)
			for id, qty := range initial {
				assert.Equal(t, qty, f.qty(id), "variant %s", id)
			}
		})
	}
}

func TestRestore_ConcurrentCallsCreditOnce(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			f.variant("a", "", 10)
			_, err := f.svc.Deduct(f.ctx, biz, "order-1", []ledger.OrderLine{line("a", 6)})
			require.NoError(t, err)

			const callers = 8
			done := make(chan ledger.RestoreResult, callers)
			for i := 0; i < callers; i++ {
				go func() {
					res, err := f.svc.Restore(f.ctx, biz, "order-1")
					assert.NoError(t, err)
					done <- res
				}()
			}

			applied := 0
			for i := 0; i < callers; i++ {
				applied += len((<-done).Applied)
			}
			assert.Equal(t, 1, applied)
			assert.Equal(t, int64(10), f.qty("a"))
		})
	}
}

func TestRestore_UsesConfiguredOrderSource(t *testing.T) {
	f, mem := newMemoryFixture(t)
	f.variant("a", "", 1)

	source := ledger.OrderLineSourceFunc(func(_ context.Context, _ ledger.BusinessID, orderID string) ([]ledger.OrderLine, error) {
		if orderID != "external-1" {
			return nil, ledger.ErrNotFound
		}
		return []ledger.OrderLine{line("a", 2), {ProductID: "p", Quantity: 1}}, nil
	})
	m := ledger.NewMutator(mem, ledger.MutatorConfig{})
	svc := ledger.NewService(mem, m, source, nil)

	res, err := svc.Restore(f.ctx, biz, "external-1")
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.Len(t, res.Skipped, 1)
	assert.Equal(t, int64(3), f.qty("a"))

	_, err = svc.Restore(f.ctx, biz, "unknown")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRestore_SourceFailureIsUnavailable(t *testing.T) {
	_, mem := newMemoryFixture(t)
	source := ledger.OrderLineSourceFunc(func(context.Context, ledger.BusinessID, string) ([]ledger.OrderLine, error) {
		return nil, errors.New("orders service timeout")
	})
	svc := ledger.NewService(mem, ledger.NewMutator(mem, ledger.MutatorConfig{}), source, nil)

	_, err := svc.Restore(context.Background(), biz, "order-1")
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestRestore_UnknownOrderRestoresNothing(t *testing.T) {
	f, _ := newMemoryFixture(t)
	f.variant("a", "", 1)

	res, err := f.svc.Restore(f.ctx, biz, "never-placed")
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, int64(1), f.qty("a"))
}
