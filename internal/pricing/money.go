package pricing

import "github.com/shopspring/decimal"

// Money values travel as float64 (the storage and wire representation) and
// are computed with decimal so repeated sums do not drift.

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// Round2 normalizes an amount to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return dec(v).Round(2).InexactFloat64()
}

// WithinTolerance reports |a-b| <= tol.
func WithinTolerance(a, b, tol float64) bool {
	return dec(a).Sub(dec(b)).Abs().LessThanOrEqual(dec(tol))
}
