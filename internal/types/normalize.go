package types

import "strings"

// NormalizeText trims, case-folds and collapses internal whitespace. It is the
// one normalization used for identity keys, catalog lookups and cache keys.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
