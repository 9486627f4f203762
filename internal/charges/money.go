package charges

import "github.com/shopspring/decimal"

var centsFactor = decimal.NewFromInt(100)

// ToCents converts a decimal currency amount to integer cents, truncating
// any sub-cent precision.
func ToCents(amount decimal.Decimal) int {
	return int(amount.Mul(centsFactor).Truncate(0).IntPart())
}

// FromCents renders integer cents as a two-decimal currency string.
func FromCents(cents int) string {
	return decimal.NewFromInt(int64(cents)).Div(centsFactor).StringFixed(2)
}
