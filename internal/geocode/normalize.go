// Package geocode resolves free-text addresses to coordinates through an
// ordered chain of external providers.
package geocode

import (
	"regexp"
	"strings"
)

var (
	// unit designators followed by an identifier that has a digit or is a
	// single letter, or a bare "#12"; "Ste. Genevieve" and "Unit Rd" stay
	unitRe = regexp.MustCompile(`(?i)\b(?:suite|ste|unit|apt|apartment|floor|bldg|building|room|rm)\b\.?\s*#?\s*(?:[a-z-]*[0-9][a-z0-9-]*|[a-z]\b(?:-[a-z0-9]+)?)|#\s*[a-z0-9-]+`)
	spaceRe = regexp.MustCompile(`\s+`)
	commaRe = regexp.MustCompile(`\s*(?:,\s*)+`)
)

// Normalize strips suite, unit, floor and building qualifiers and tidies the
// separators they leave behind. It never fails and is idempotent.
func Normalize(raw string) string {
	s := raw
	// a removal can expose a new match, so iterate to a fixpoint; every pass
	// after the first that changes anything deletes at least one qualifier
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = unitRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = commaRe.ReplaceAllString(s, ", ")
	return strings.Trim(s, ", ")
}
