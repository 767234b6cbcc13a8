package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Text trims surrounding whitespace and applies Unicode canonical
// composition (NFC) so visually identical accented sequences compare
// equal. The second return is false when nothing remains; callers must
// branch on it instead of testing for "".
func Text(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return norm.NFC.String(s), true
}

// Fold returns the comparison key used for every case-insensitive check
// in the catalog. Matching and deduplication must agree on one folding.
func Fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Field normalizes every item and drops case-insensitive duplicates,
// keeping the first occurrence's casing and position. Nil or empty
// input yields an empty list, never an error.
func Field(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		clean, ok := Text(item)
		if !ok {
			continue
		}
		key := strings.ToLower(clean)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, clean)
	}
	return out
}
