package scrape

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips combining accents, so "Matrícula" and
// "MATRICULA" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ContainsFold reports whether needle occurs in haystack, ignoring case and
// accents.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// MatchAny returns the first term found in text (case and accent
// insensitive).
func MatchAny(text string, terms []string) (string, bool) {
	folded := Fold(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(folded, Fold(term)) {
			return term, true
		}
	}
	return "", false
}
