package scrape

import (
	"regexp"
	"strings"
	"time"
)

var (
	// "12 rue de la Paix 75002 Paris"
	addrSpaceRe = regexp.MustCompile(`^(.+?)\s+(\d{5})\s+(.+)$`)
	// "12 rue de la Paix, 75002 Paris"
	addrCommaRe = regexp.MustCompile(`^(.+),\s*(\d{5})\s+(.+)$`)

	siretRe        = regexp.MustCompile(`(\d{14})`)
	legalFormRe    = regexp.MustCompile(`Forme juridique\s*:?\s*([^\n.]+)`)
	creationDateRe = regexp.MustCompile(`Date de création\s*:?\s*(\d{2}/\d{2}/\d{4})`)

	spacesRe = regexp.MustCompile(`\s+`)
)

// splitAddress breaks a one-line French address into street line, postal
// code and city. The comma form is tried first because a street line may
// itself contain digits that would confuse the space form.
func splitAddress(raw string) (line, postal, city string, ok bool) {
	raw = cleanText(raw)
	if raw == "" {
		return "", "", "", false
	}
	if m := addrCommaRe.FindStringSubmatch(raw); m != nil {
		return cleanText(m[1]), m[2], cleanText(m[3]), true
	}
	if m := addrSpaceRe.FindStringSubmatch(raw); m != nil {
		return cleanText(m[1]), m[2], cleanText(m[3]), true
	}
	return "", "", "", false
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}

// extractSIRET pulls the first 14-digit sequence out of free text.
func extractSIRET(s string) string {
	if m := siretRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// extractLegalForm pulls the value after a "Forme juridique" label.
func extractLegalForm(s string) string {
	if m := legalFormRe.FindStringSubmatch(s); m != nil {
		return cleanText(m[1])
	}
	return ""
}

// extractCreationDate parses a DD/MM/YYYY date after a "Date de création"
// label. Returns nil when absent or unparsable.
func extractCreationDate(s string) *time.Time {
	m := creationDateRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	t, err := time.Parse("02/01/2006", m[1])
	if err != nil {
		return nil
	}
	return &t
}

// splitList breaks a comma-separated cell into cleaned non-empty items.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := cleanText(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
