package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold produces the case-insensitive comparison form of an address part.
// Only case and Unicode composition are normalised; spacing and punctuation
// are significant, matching a LOWER(a) = LOWER(b) comparison in the store.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// EqualFold reports whether two address parts match case-insensitively
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// ContainsFold reports whether s contains substr, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}
