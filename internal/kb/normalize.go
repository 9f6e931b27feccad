package kb

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a name into its matching key: NFC, no whitespace
// (including no-break and zero-width spaces), no periods or quote
// characters, lowercase.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '"', '\'', '’', '‘', '“', '”', '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, norm.NFC.String(s))
}

// Clean collapses whitespace runs in a mention to single spaces. It is the
// display form kept for mentions that resolve to nothing.
func Clean(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u200b", "")), " ")
}
