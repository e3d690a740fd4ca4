package sanitizer

// NormalizeStringSlice applies normalizer to every item, then drops empty
// results and later duplicates. Order of first appearance is kept.
func NormalizeStringSlice[S ~string](items []S, normalizer func(S) S) []S {
	out := make([]S, 0, len(items))
	seen := make(map[S]struct{}, len(items))

	for _, item := range items {
		n := normalizer(item)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func NormalizePerks(perks []string) []string {
	return NormalizeStringSlice(perks, NormalizePerk)
}
