// Package textnorm canonicalizes German-language text for matching.
package textnorm

import "strings"

var umlauts = strings.NewReplacer(
	"ü", "u",
	"ö", "o",
	"ä", "a",
	"ß", "ss",
)

// Normalize lower-cases text, folds umlauts to their base letters, maps the
// sharp-s to "ss" and canonicalizes common spellings of the street suffix.
// It is total over any input and never fails.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = umlauts.Replace(s)
	// Order matters: "strasse" must be rewritten before "strass" so the
	// shorter variant does not swallow the longer one.
	s = strings.ReplaceAll(s, "str.", "straße")
	s = strings.ReplaceAll(s, "strasse", "straße")
	s = strings.ReplaceAll(s, "strass", "straße")
	return s
}

// Tokenize normalizes text, treats hyphens as separators and splits on
// whitespace, dropping empty tokens. Used for address-component comparison.
func Tokenize(text string) []string {
	s := strings.ReplaceAll(Normalize(text), "-", " ")
	return strings.Fields(s)
}
