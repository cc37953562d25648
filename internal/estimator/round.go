package estimator

import "github.com/shopspring/decimal"

// roundingBias nudges values that sit a hair under a .005 boundary because of
// binary representation error.
var roundingBias = decimal.New(1, -12)

// Round2 rounds half-up to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Add(roundingBias).Round(2).InexactFloat64()
}
