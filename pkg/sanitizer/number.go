package sanitizer

import "math"

// RoundCents rounds an amount to whole cents. Non-finite values become 0
// so validation rejects them.
func RoundCents(amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return math.Round(amount*100) / 100
}

// CeilCents rounds a cost up to whole cents, so a supplier charge is never
// understated. Float noise below a millionth of a cent is ignored.
func CeilCents(amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	cents := math.Ceil(amount*100 - 1e-6)
	if cents == 0 {
		return 0
	}
	return cents / 100
}
