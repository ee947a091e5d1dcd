// Package money holds the rounding and display rules for royalty amounts.
// Statements carry micro-revenue rows (streaming fractions of a cent), so
// amounts are stored at four decimal places and only rounded to cents for
// display.
package money

import "github.com/shopspring/decimal"

// storagePlaces is the precision amounts are persisted and computed at.
const storagePlaces = 4

// Round normalizes an amount to storage precision using half-up rounding.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(storagePlaces)
}

// Share computes amount * (percent / 100) at storage precision.
func Share(amount, percent decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(percent).Div(decimal.NewFromInt(100)))
}

// Format renders an amount with a dollar sign at two decimal places. Positive
// amounts that would display as $0.00 keep four decimal places instead, so
// micro-revenue rows stay distinguishable from true zeros.
func Format(amount decimal.Decimal) string {
	cents := amount.Round(2)
	if cents.IsZero() && amount.IsPositive() {
		return "$" + amount.StringFixed(4)
	}
	return "$" + cents.StringFixed(2)
}
