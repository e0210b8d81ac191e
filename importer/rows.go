/*
Package importer turns external stock sheets into bulk reconciliation lines.

SOURCES:
  SheetSource   Google Sheets range (sheets.go)
  ReadCSV       comma separated file (file.go)
  ReadYAML      YAML list of {sku, target_qty} (file.go)

All sources end in ParseRows, so header detection and quantity parsing are
the same everywhere. A row that cannot be parsed becomes a BulkFailure with
its 1-based row number; it never aborts the import.
*/
package importer

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-ledger/ledger"
)

var (
	skuHeaders = map[string]bool{"sku": true}
	qtyHeaders = map[string]bool{"qty": true, "quantity": true, "target_qty": true, "inventory_qty": true, "stock": true}

	maxQty = decimal.NewFromInt(math.MaxInt64)
	minQty = decimal.NewFromInt(math.MinInt64)
)

// ParseRows converts raw cells into bulk lines. When the first row names a
// sku column and a quantity column it is treated as a header; otherwise
// column 0 is the SKU and column 1 the target quantity. Blank rows are
// ignored.
func ParseRows(rows [][]interface{}) ([]ledger.BulkLine, []ledger.BulkFailure) {
	return parseRows(rows, 1)
}

// parseRows numbers rows[i] as i+base.
func parseRows(rows [][]interface{}, base int) ([]ledger.BulkLine, []ledger.BulkFailure) {
	var (
		lines    []ledger.BulkLine
		failures []ledger.BulkFailure
	)
	if len(rows) == 0 {
		return nil, nil
	}

	skuCol, qtyCol, header := detectHeader(rows[0])
	start := 0
	if header {
		start = 1
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		rowNum := i + base
		if blank(row) {
			continue
		}

		sku := strings.TrimSpace(cell(row, skuCol))
		if sku == "" {
			failures = append(failures, ledger.BulkFailure{Row: rowNum, Err: fmt.Errorf("%w: row %d: missing sku", ledger.ErrInvalidLine, rowNum)})
			continue
		}

		var raw interface{}
		if qtyCol < len(row) {
			raw = row[qtyCol]
		}
		qty, err := ParseQuantity(raw)
		if err != nil {
			failures = append(failures, ledger.BulkFailure{SKU: sku, Row: rowNum, Err: fmt.Errorf("row %d: %w", rowNum, err)})
			continue
		}

		lines = append(lines, ledger.BulkLine{SKU: sku, TargetQty: qty, Row: rowNum})
	}
	return lines, failures
}

// ParseQuantity accepts whole numbers written as integers, decimals with a
// zero fraction ("12.0") or numeric cells. Fractions and values outside
// int64 are rejected.
func ParseQuantity(v interface{}) (int64, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: missing quantity", ledger.ErrInvalidQuantity)
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: %v", ledger.ErrInvalidQuantity, x)
		}
		d = decimal.NewFromFloat(x)
	default:
		s := strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(x)), ",", "")
		if s == "" {
			return 0, fmt.Errorf("%w: missing quantity", ledger.ErrInvalidQuantity)
		}
		d, err = decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ledger.ErrInvalidQuantity, s)
		}
	}

	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s is not a whole number", ledger.ErrInvalidQuantity, d)
	}
	if d.GreaterThan(maxQty) || d.LessThan(minQty) {
		return 0, fmt.Errorf("%w: %s is out of range", ledger.ErrInvalidQuantity, d)
	}
	return d.IntPart(), nil
}

func detectHeader(first []interface{}) (skuCol, qtyCol int, ok bool) {
	skuCol, qtyCol = -1, -1
	for i, c := range first {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(c)))
		switch {
		case skuHeaders[name] && skuCol < 0:
			skuCol = i
		case qtyHeaders[name] && qtyCol < 0:
			qtyCol = i
		}
	}
	if skuCol < 0 || qtyCol < 0 {
		return 0, 1, false
	}
	return skuCol, qtyCol, true
}

func cell(row []interface{}, col int) string {
	if col >= len(row) || row[col] == nil {
		return ""
	}
	return fmt.Sprint(row[col])
}

func blank(row []interface{}) bool {
	for i := range row {
		if strings.TrimSpace(cell(row, i)) != "" {
			return false
		}
	}
	return true
}
