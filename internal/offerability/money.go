package offerability

import "math"

// CeilCents rounds a dollar amount up to the next cent. Floors and counter
// prices always round up so rounding can never cross the cost floor.
func CeilCents(v float64) float64 {
	return math.Ceil(v*100-1e-6) / 100
}

// ceilCentsAtLeast returns the smallest whole-cent amount that is not
// below v once converted back to dollars.
func ceilCentsAtLeast(v float64) int64 {
	c := int64(math.Ceil(v*100 - 1e-6))
	for float64(c)/100 < v {
		c++
	}
	return c
}

// Cents converts a dollar amount to integer cents, rounding to nearest.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
