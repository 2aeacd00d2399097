// Package money holds the decimal helpers shared by the pricing components.
package money

import "github.com/shopspring/decimal"

// Places is the currency precision used for discounts and line totals.
const Places int32 = 2

var hundred = decimal.NewFromInt(100)

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// Round rounds an amount half away from zero to currency precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ClampPercent bounds pct to the closed range [0, 100].
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// NonNegative returns d, or zero when d is negative.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Ceil rounds d up to the next whole currency unit.
func Ceil(d decimal.Decimal) decimal.Decimal {
	return d.Ceil()
}

// Ptr returns a pointer to a copy of d.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
