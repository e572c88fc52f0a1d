package analytics

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const noText = "(no text)"

// NormalizeText is the grouping key of an option text: NFKC-normalized, trimmed, inner
// whitespace runs collapsed to one space and lowercased.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// A Caser is stateful, so each call gets its own.
	return cases.Lower(language.Und).String(s)
}

// displayText is the trimmed text shown for a group.
func displayText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return noText
	}
	return s
}
