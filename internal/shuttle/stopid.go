package shuttle

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

var symbolWords = strings.NewReplacer(
	"&", "and",
	"@", " at ",
	"+", " plus ",
	".", " ",
	"/", " ",
)

// NormalizeStopID derives the lookup key for a stop name: accents removed,
// a few symbols spelled out, every other run of non-alphanumerics turned
// into a single hyphen, lowercased. Applying it twice changes nothing.
func NormalizeStopID(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	folded = symbolWords.Replace(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingDash = true
	}
	return b.String()
}
