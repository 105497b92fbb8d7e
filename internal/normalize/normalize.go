// Package normalize folds company names and search terms into stable
// comparison keys. French directory sources disagree on accents and casing
// for the same business ("Café de la Gare" vs "CAFE DE LA GARE"), so the
// dedup key strips diacritics, lowercases, and collapses whitespace.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold removes diacritics and lowercases s.
func Fold(s string) string {
	out, _, err := transform.String(stripper, s)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the input.
		out = s
	}
	return strings.ToLower(out)
}

// Key builds the canonical dedup key for a company name: folded, with
// runs of whitespace collapsed to single spaces and outer space trimmed.
func Key(name string) string {
	return strings.Join(strings.Fields(Fold(name)), " ")
}

// Phone strips all whitespace from a phone number as scraped.
func Phone(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}
