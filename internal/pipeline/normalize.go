package pipeline

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalize trims, NFC-normalizes, collapses whitespace runs to a single
// space and truncates to maxChars runes.
func normalize(s string, maxChars int) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	if maxChars > 0 && utf8.RuneCountInString(s) > maxChars {
		s = string([]rune(s)[:maxChars])
	}
	return s
}
