package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReason(t *testing.T) {
	r, err := ParseReason("  Sale ")
	require.NoError(t, err)
	assert.Equal(t, ReasonSale, r)

	_, err = ParseReason("theft")
	assert.ErrorIs(t, err, ErrInvalidReason)

	for _, r := range Reasons {
		assert.True(t, r.Valid(), r)
	}
}

func TestValidateChange(t *testing.T) {
	tests := []struct {
		reason  Reason
		change  Change
		wantErr error
	}{
		{ReasonSale, Delta(-1), nil},
		{ReasonSale, Delta(1), ErrInvalidQuantity},
		{ReasonDamage, Delta(-1), nil},
		{ReasonReturn, Delta(1), nil},
		{ReasonReturn, Delta(-1), ErrInvalidQuantity},
		{ReasonRestock, Delta(3), nil},
		{ReasonAdjustment, Delta(-3), nil},
		{ReasonCorrection, Delta(3), nil},
		{ReasonCorrection, Delta(0), ErrInvalidQuantity},
		{ReasonAdjustment, SetTo(0), nil},
		{ReasonCorrection, SetTo(-2), nil},
		{ReasonSale, SetTo(2), ErrInvalidReason},
		{ReasonDamage, SetTo(2), ErrInvalidReason},
		{Reason(""), Delta(1), ErrInvalidReason},
		{ReasonAdjustment, Delta(math.MinInt64), ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason)+" "+tt.change.String(), func(t *testing.T) {
			err := ValidateChange(tt.reason, tt.change)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQuantityArithmetic(t *testing.T) {
	sum, ok := AddQty(3, -5)
	assert.True(t, ok)
	assert.Equal(t, int64(-2), sum)
	_, ok = AddQty(math.MaxInt64, 1)
	assert.False(t, ok)
	_, ok = AddQty(math.MinInt64, -1)
	assert.False(t, ok)

	diff, ok := SubQty(4, -1)
	assert.True(t, ok)
	assert.Equal(t, int64(5), diff)
	_, ok = SubQty(math.MaxInt64, -1)
	assert.False(t, ok)
	_, ok = SubQty(math.MinInt64, 1)
	assert.False(t, ok)

	tests := []struct {
		delta         int64
		allowNegative bool
		lo, hi        int64
	}{
		{5, true, math.MinInt64, math.MaxInt64 - 5},
		{5, false, -5, math.MaxInt64 - 5},
		{-3, true, math.MinInt64 + 3, math.MaxInt64},
		{-3, false, 3, math.MaxInt64},
	}
	for _, tt := range tests {
		lo, hi := DeltaBounds(tt.delta, tt.allowNegative)
		assert.Equal(t, tt.lo, lo, "delta %d", tt.delta)
		assert.Equal(t, tt.hi, hi, "delta %d", tt.delta)
	}
}

func TestStockPolicy(t *testing.T) {
	p := DefaultStockPolicy()
	assert.False(t, p.Allows(ReasonSale))
	for _, r := range []Reason{ReasonReturn, ReasonRestock, ReasonAdjustment, ReasonCorrection, ReasonDamage} {
		assert.True(t, p.Allows(r), r)
	}

	relaxed := p.WithNegativeSales(true)
	assert.True(t, relaxed.Allows(ReasonSale))
	assert.False(t, p.Allows(ReasonSale), "WithNegativeSales must not modify the receiver")

	assert.True(t, StockPolicy{}.Allows(ReasonSale), "missing reasons are allowed")
}

func TestOrderMarker(t *testing.T) {
	assert.Equal(t, "o1|v1|sale", OrderMarker("o1", "v1", ReasonSale))
	assert.Equal(t, "o1|v1|return", OrderMarker("o1", "v1", ReasonReturn))
	assert.Empty(t, OrderMarker("", "v1", ReasonSale))
	assert.Empty(t, OrderMarker("o1", "v1", ReasonAdjustment))
}

func TestErrorHelpers(t *testing.T) {
	batch := &BatchError{OrderID: "o1", Applied: 1, Failed: 1, First: &InsufficientStockError{VariantID: "v1"}}
	assert.ErrorIs(t, batch, ErrPartialFailure)
	assert.ErrorIs(t, batch, ErrInsufficientStock)
	assert.True(t, IsClientError(batch))

	wrapped := &MutationError{BusinessID: "b", VariantID: "v", Change: SetTo(3), Reason: ReasonAdjustment, Err: ErrConflict}
	assert.True(t, IsRetryable(wrapped))
	assert.Contains(t, wrapped.Error(), "set to 3")
	assert.True(t, IsNotFound(&MutationError{Err: ErrNotFound}))

	replayed := &MutationError{Reason: ReasonSale, Err: ErrDuplicateEntry}
	assert.True(t, IsClientError(replayed))
	assert.False(t, IsRetryable(replayed))
}
