package aggregate

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Relations is the canonical relation vocabulary, singular and lowercase.
var Relations = []string{
	"father", "mother", "brother", "sister", "wife", "husband",
	"son", "daughter", "parent", "aunt", "uncle", "cousin",
	"nephew", "niece", "in-law", "fiancé", "fiancée",
	"friend", "lover", "partner", "companion", "relative", "family", "couple",
}

// plurals folds known plural labels to their singular form.
var plurals = map[string]string{
	"friends":   "friend",
	"daughters": "daughter",
	"sons":      "son",
	"brothers":  "brother",
	"sisters":   "sister",
	"parents":   "parent",
	"couples":   "couple",
	"wives":     "wife",
	"husbands":  "husband",
	"fathers":   "father",
	"mothers":   "mother",
}

var relationSet = func() map[string]bool {
	m := make(map[string]bool, len(Relations))
	for _, r := range Relations {
		m[r] = true
	}
	return m
}()

// fold lowercases and NFC-normalizes a word so precomposed and combining
// spellings of "fiancé" compare equal.
func fold(word string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(word)))
}

// IsRelation reports whether word, lowercased, is in the vocabulary.
func IsRelation(word string) bool {
	return relationSet[fold(word)]
}

// IsRelationTerm reports whether word is a vocabulary entry or one of its
// known plural forms.
func IsRelationTerm(word string) bool {
	w := fold(word)
	_, plural := plurals[w]
	return relationSet[w] || plural
}

// Canonical lowercases a label and folds known plurals. Unmapped labels
// pass through lowercased.
func Canonical(label string) string {
	l := fold(label)
	if s, ok := plurals[l]; ok {
		return s
	}
	return l
}

// pronouns never stand for a character on their own.
var pronouns = map[string]bool{
	"his": true, "her": true, "their": true, "my": true, "your": true, "our": true,
	"its": true, "him": true, "me": true, "them": true, "you": true,
}

// IsPronoun reports whether a mention is a bare personal or possessive pronoun.
func IsPronoun(mention string) bool {
	return pronouns[strings.ToLower(strings.TrimSpace(mention))]
}
