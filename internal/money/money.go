// Package money centralizes monetary arithmetic for the budget ledger.
//
// Amounts are decimal.Decimal values scaled to two fractional digits.
// Rounding is half-up, matching how the store prices were rounded before
// the ledger existed.
package money

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// Round scales an amount to two decimal places, rounding half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns pct percent of amount, rounded to two decimal places.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(oneHundred))
}

// ClampNonNegative returns d, or zero when d is negative.
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// UsagePercent returns used/total as a percentage float for display.
// Returns 0 when total is zero.
func UsagePercent(used, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	pct, _ := used.Div(total).Mul(oneHundred).Round(2).Float64()
	return pct
}

// MustParse parses a decimal string and panics on failure. Intended for
// constants and tests only.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
