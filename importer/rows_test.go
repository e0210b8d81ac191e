package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-ledger/ledger"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{" 12.0 ", 12, false},
		{"1,200", 1200, false},
		{"-3", -3, false},
		{12.0, 12, false},
		{7, 7, false},
		{int64(9), 9, false},
		{"12.5", 0, true},
		{2.5, 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{nil, 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ledger.ErrInvalidQuantity, "input %#v", tt.in)
			continue
		}
		require.NoError(t, err, "input %#v", tt.in)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func TestParseRows_WithHeader(t *testing.T) {
	rows := [][]interface{}{
		{"Name", "Quantity", "SKU"},
		{"Red tee M", "12", "TEE-RED-M"},
		{},
		{"Blue tee S", "1.5", "TEE-BLUE-S"},
		{"Ghost", "3"},
	}

	lines, failures := ParseRows(rows)

	require.Len(t, lines, 1)
	assert.Equal(t, ledger.BulkLine{SKU: "TEE-RED-M", TargetQty: 12, Row: 2}, lines[0])

	require.Len(t, failures, 2)
	assert.Equal(t, "TEE-BLUE-S", failures[0].SKU)
	assert.Equal(t, 4, failures[0].Row)
	assert.ErrorIs(t, failures[0].Err, ledger.ErrInvalidQuantity)
	assert.Equal(t, 5, failures[1].Row)
	assert.ErrorIs(t, failures[1].Err, ledger.ErrInvalidLine)
}

func TestParseRows_WithoutHeader(t *testing.T) {
	lines, failures := ParseRows([][]interface{}{
		{"A-1", "4"},
		{"A-2", 0.0},
	})
	assert.Empty(t, failures)
	assert.Equal(t, []ledger.BulkLine{
		{SKU: "A-1", TargetQty: 4, Row: 1},
		{SKU: "A-2", TargetQty: 0, Row: 2},
	}, lines)

	lines, failures = ParseRows(nil)
	assert.Empty(t, lines)
	assert.Empty(t, failures)
}
