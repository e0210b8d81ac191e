package ledger

import (
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// REASON TAXONOMY
// =============================================================================

// Reason is the closed set of causes for a stock change.
type Reason string

const (
	ReasonSale       Reason = "sale"       // order placed
	ReasonReturn     Reason = "return"     // order refunded or cancelled
	ReasonRestock    Reason = "restock"    // goods received
	ReasonAdjustment Reason = "adjustment" // manual set or bulk reconciliation
	ReasonCorrection Reason = "correction" // fixing a previous mistake
	ReasonDamage     Reason = "damage"     // written off
)

// Reasons lists the taxonomy in a stable order.
var Reasons = []Reason{
	ReasonSale, ReasonReturn, ReasonRestock,
	ReasonAdjustment, ReasonCorrection, ReasonDamage,
}

// Valid reports whether r is part of the taxonomy.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonReturn, ReasonRestock, ReasonAdjustment, ReasonCorrection, ReasonDamage:
		return true
	}
	return false
}

// ParseReason normalizes user input into a Reason.
func ParseReason(s string) (Reason, error) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, s)
	}
	return r, nil
}

// direction is the required sign of a relative change for a reason.
type direction int

const (
	anySign direction = iota
	mustDecrease
	mustIncrease
)

var reasonDirection = map[Reason]direction{
	ReasonSale:       mustDecrease,
	ReasonDamage:     mustDecrease,
	ReasonReturn:     mustIncrease,
	ReasonRestock:    mustIncrease,
	ReasonAdjustment: anySign,
	ReasonCorrection: anySign,
}

// ValidateChange applies the guard rules that do not depend on the current
// quantity: taxonomy membership, delta direction and which reasons may set
// an absolute quantity.
func ValidateChange(reason Reason, change Change) error {
	if !reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	if change.Mode == ModeAbsolute {
		if reason != ReasonAdjustment && reason != ReasonCorrection {
			return fmt.Errorf("%w: %s cannot set an absolute quantity", ErrInvalidReason, reason)
		}
		return nil
	}

	if change.Value == 0 {
		return fmt.Errorf("%w: delta must be non-zero", ErrInvalidQuantity)
	}
	if change.Value == math.MinInt64 {
		return fmt.Errorf("%w: delta %d out of range", ErrInvalidQuantity, change.Value)
	}
	switch reasonDirection[reason] {
	case mustDecrease:
		if change.Value > 0 {
			return fmt.Errorf("%w: %s requires a negative delta, got %+d", ErrInvalidQuantity, reason, change.Value)
		}
	case mustIncrease:
		if change.Value < 0 {
			return fmt.Errorf("%w: %s requires a positive delta, got %+d", ErrInvalidQuantity, reason, change.Value)
		}
	}
	return nil
}

// AddQty returns qty+delta, or false when the sum does not fit in an int64.
func AddQty(qty, delta int64) (int64, bool) {
	sum := qty + delta
	if (delta > 0 && sum < qty) || (delta < 0 && sum > qty) {
		return 0, false
	}
	return sum, true
}

// SubQty returns target-qty, or false when the difference does not fit in
// an int64.
func SubQty(target, qty int64) (int64, bool) {
	diff := target - qty
	if (target^qty)&(target^diff) < 0 {
		return 0, false
	}
	return diff, true
}

// DeltaBounds returns the inclusive range of current quantities that delta
// may be applied to: the sum must fit in an int64 and, unless allowNegative,
// stay >= 0. delta must not be math.MinInt64.
func DeltaBounds(delta int64, allowNegative bool) (lo, hi int64) {
	lo, hi = math.MinInt64, math.MaxInt64
	if delta > 0 {
		hi -= delta
	} else {
		lo -= delta
	}
	if !allowNegative && -delta > lo {
		lo = -delta
	}
	return lo, hi
}

// OverflowError reports a delta whose result does not fit in an int64.
func OverflowError(variantID VariantID, qty, delta int64) error {
	return fmt.Errorf("%w: %s at %d cannot take %+d without overflow", ErrInvalidQuantity, variantID, qty, delta)
}

// =============================================================================
// STOCK POLICY - Negative stock rules
// =============================================================================

// StockPolicy decides whether a mutation may leave a variant below zero.
// Reasons missing from AllowNegative are treated as allowed.
type StockPolicy struct {
	AllowNegative map[Reason]bool
}

// DefaultStockPolicy rejects negative results for sales and allows them for
// every manual reason.
func DefaultStockPolicy() StockPolicy {
	return StockPolicy{AllowNegative: map[Reason]bool{
		ReasonSale:       false,
		ReasonReturn:     true,
		ReasonRestock:    true,
		ReasonAdjustment: true,
		ReasonCorrection: true,
		ReasonDamage:     true,
	}}
}

// WithNegativeSales returns a copy of p with the sale rule replaced.
func (p StockPolicy) WithNegativeSales(allow bool) StockPolicy {
	out := StockPolicy{AllowNegative: make(map[Reason]bool, len(p.AllowNegative)+1)}
	for r, v := range p.AllowNegative {
		out.AllowNegative[r] = v
	}
	out.AllowNegative[ReasonSale] = allow
	return out
}

// Allows reports whether reason may produce a negative quantity.
func (p StockPolicy) Allows(reason Reason) bool {
	allow, ok := p.AllowNegative[reason]
	return !ok || allow
}
