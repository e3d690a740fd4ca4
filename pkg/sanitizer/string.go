package sanitizer

import (
	"strings"
	"unicode"
)

// TrimAndNormalize trims s and collapses every inner whitespace run to a
// single space.
func TrimAndNormalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeKey is used for canonical product keys and supplier ids.
func NormalizeKey(key string) string {
	return TrimAndNormalize(key)
}

// NormalizePerk keeps the display casing of a perk name.
func NormalizePerk(perk string) string {
	return TrimAndNormalize(perk)
}
