// Package textnorm folds free text into a comparison key that ignores case,
// accents and whitespace layout.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips combining marks after NFD decomposition and
// collapses whitespace runs into single spaces. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Lower first: some upper-case letters (e.g. U+0130) lower into a base
	// letter plus a combining mark, which the next step removes.
	lowered := strings.ToLower(s)

	// transform.Chain keeps state, so it is built per call.
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, lowered)
	if err != nil {
		folded = lowered
	}

	return strings.Join(strings.Fields(folded), " ")
}

// Contains reports whether needle occurs in haystack after both are normalized.
func Contains(haystack, needle string) bool {
	return strings.Contains(Normalize(haystack), Normalize(needle))
}

// HasPrefix reports whether haystack starts with prefix after both are normalized.
func HasPrefix(haystack, prefix string) bool {
	return strings.HasPrefix(Normalize(haystack), Normalize(prefix))
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
