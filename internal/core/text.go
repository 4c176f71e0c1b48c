package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the comparison form of s: lowercased when lower is true,
// decomposed with diacritics removed, inner whitespace collapsed to single
// spaces and trimmed. Fold is idempotent.
func Fold(s string, lower bool) string {
	if lower {
		s = strings.ToLower(s)
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// NormalizeUnitName is the single key function for business unit names.
// Case is preserved so names render as stored.
func NormalizeUnitName(s string) string {
	return Fold(s, false)
}
