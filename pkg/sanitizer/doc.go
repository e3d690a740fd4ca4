// Package sanitizer normalizes negotiation requests before validation.
//
// All normalization functions are idempotent: applying them twice gives the
// same result as applying them once. Invalid input is passed through or
// emptied rather than rejected, so the validator reports the problem.
//
// Normalization includes:
//   - Codes (promo codes, currencies): trimmed, upper-cased, separators removed
//   - Keys: surrounding whitespace trimmed, inner whitespace collapsed
//   - Enumerations (device type, style): trimmed, lower-cased
//   - Slices: duplicates and empty values removed after normalization
//   - Amounts: rounded to whole cents
package sanitizer
