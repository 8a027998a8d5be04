// Package billing holds the card-processor fee arithmetic shared by hold
// sizing and capture recording.
package billing

import "github.com/shopspring/decimal"

var (
	// Card charges cost a fixed fee plus a percentage, charged on top.
	feeFixed = decimal.RequireFromString("0.30")
	feeRate  = decimal.RequireFromString("0.029")

	// MinimumCharge is the smallest amount worth charging a card; anything
	// below it gets rounded up at hold-creation time so fees don't eat the
	// whole charge.
	MinimumCharge = decimal.RequireFromString("9.41")

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Upcharge computes the gross amount to charge so that `amount` remains after
// processor fees, rounding up to the cent. Returns the gross amount and the fee.
func Upcharge(amount decimal.Decimal) (charge decimal.Decimal, fee decimal.Decimal) {
	charge = amount.Add(feeFixed).Div(one.Sub(feeRate)).RoundUp(2)
	return charge, charge.Sub(amount)
}

// MinorUnits converts a decimal amount to integer minor units (cents), the
// representation the processor uses for hold amounts.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
