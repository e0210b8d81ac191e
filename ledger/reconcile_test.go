package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
)

func TestBulkSet_PartialFailure(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			f := newFixture(t, b.open(t))
			f.variant("v1", "SKU-1", 10)
			f.variant("v2", "SKU-2", 0)
			f.variant("v3", "SKU-3", 4)
			f.variant("v4", "SKU-4", 9)

			// GIVEN five lines, one with an unknown SKU
			res, err := f.svc.BulkSet(f.ctx, biz, "admin-1", []ledger.BulkLine{
				{SKU: "SKU-1", TargetQty: 12, Row: 2},
				{SKU: "SKU-2", TargetQty: 5, Row: 3},
				{SKU: "SKU-404", TargetQty: 1, Row: 4},
				{SKU: "SKU-3", TargetQty: 4, Row: 5},
				{SKU: " SKU-4 ", TargetQty: 0, Row: 6},
			})

			// THEN four are applied and the unknown one is reported
			require.NoError(t, err)
			assert.Equal(t, 4, res.SuccessCount)
			require.Len(t, res.Failures, 1)
			assert.Equal(t, "SKU-404", res.Failures[0].SKU)
			assert.Equal(t, 4, res.Failures[0].Row)
			assert.ErrorIs(t, res.Failures[0].Err, ledger.ErrNotFound)

			assert.Equal(t, int64(12), f.qty("v1"))
			assert.Equal(t, int64(5), f.qty("v2"))
			assert.Equal(t, int64(4), f.qty("v3"))
			assert.Equal(t, int64(0), f.qty("v4"))

			// AND every applied line is an adjustment by the actor
			e := f.entries("v1")[0]
			assert.Equal(t, ledger.ReasonAdjustment, e.Reason)
			assert.Equal(t, "admin-1", e.ActorID)
			assert.Equal(t, ledger.BulkNote, e.Note)
			assert.Equal(t, int64(2), e.ChangeQty)

			// AND an unchanged line is still audited
			require.Len(t, f.entries("v3"), 1)
			assert.Equal(t, int64(0), f.entries("v3")[0].ChangeQty)
		})
	}
}

func TestBulkSet_LineValidation(t *testing.T) {
	f, _ := newMemoryFixture(t)
	f.variant("v1", "SKU-1", 10)

	res, err := f.svc.BulkSet(f.ctx, biz, "admin-1", []ledger.BulkLine{
		{SKU: "SKU-1", TargetQty: 3},
		{SKU: "SKU-1", TargetQty: 8},
		{SKU: "  ", TargetQty: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	require.Len(t, res.Failures, 2)
	assert.ErrorIs(t, res.Failures[0].Err, ledger.ErrDuplicateSKU)
	assert.ErrorIs(t, res.Failures[1].Err, ledger.ErrInvalidLine)

	// The first occurrence wins.
	assert.Equal(t, int64(3), f.qty("v1"))
}

func TestBulkSet_TenantIsolation(t *testing.T) {
	f, _ := newMemoryFixture(t)
	f.variant("v1", "SKU-1", 10)

	res, err := f.svc.BulkSet(f.ctx, "other-biz", "admin-1", []ledger.BulkLine{{SKU: "SKU-1", TargetQty: 0}})
	require.NoError(t, err)
	assert.Zero(t, res.SuccessCount)
	assert.ErrorIs(t, res.Failures[0].Err, ledger.ErrNotFound)
	assert.Equal(t, int64(10), f.qty("v1"))

	_, err = f.svc.BulkSet(f.ctx, "", "admin-1", nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidLine)
}
