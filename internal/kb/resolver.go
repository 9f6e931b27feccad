// Package kb resolves character mentions against a roster of canonical
// identities.
package kb

import "strings"

// Unresolved is the QID given to mentions that match no roster entry.
const Unresolved = "N/A"

// Resolution is the outcome of resolving one mention.
type Resolution struct {
	QID  string
	Name string
}

// Resolved reports whether the mention matched a roster entry.
func (r Resolution) Resolved() bool {
	return r.QID != Unresolved
}

// KnowledgeBase is an immutable, roster-ordered set of characters.
type KnowledgeBase struct {
	chars []Character
	byQID map[string]int
	keys  [][]string     // normalized name and aliases per character
	exact map[string]int // normalized key -> first character in roster order
}

// New indexes chars. Iteration order is the order given.
func New(chars []Character) *KnowledgeBase {
	kb := &KnowledgeBase{
		chars: chars,
		byQID: make(map[string]int, len(chars)),
		keys:  make([][]string, len(chars)),
		exact: make(map[string]int),
	}
	for i, c := range chars {
		kb.byQID[c.QID] = i
		for _, n := range c.Names() {
			key := Normalize(n)
			if key == "" {
				continue
			}
			kb.keys[i] = append(kb.keys[i], key)
			if _, ok := kb.exact[key]; !ok {
				kb.exact[key] = i
			}
		}
	}
	return kb
}

// Resolve maps a mention to a character. An exact match on the normalized
// canonical name or any alias anywhere in the roster wins; otherwise the
// first character, in roster order, whose normalized name or alias contains
// the normalized mention. Unmatched mentions resolve to Unresolved with the
// cleaned mention as name.
func (kb *KnowledgeBase) Resolve(mention string) Resolution {
	key := Normalize(mention)
	if key != "" {
		if i, ok := kb.exact[key]; ok {
			return Resolution{QID: kb.chars[i].QID, Name: kb.chars[i].Name}
		}
		for i, keys := range kb.keys {
			for _, k := range keys {
				if strings.Contains(k, key) {
					return Resolution{QID: kb.chars[i].QID, Name: kb.chars[i].Name}
				}
			}
		}
	}
	return Resolution{QID: Unresolved, Name: Clean(mention)}
}

// Lookup returns the character with the given QID.
func (kb *KnowledgeBase) Lookup(qid string) (Character, bool) {
	i, ok := kb.byQID[qid]
	if !ok {
		return Character{}, false
	}
	return kb.chars[i], true
}

// Characters returns the roster in order.
func (kb *KnowledgeBase) Characters() []Character {
	return kb.chars
}

// Len returns the number of characters.
func (kb *KnowledgeBase) Len() int {
	return len(kb.chars)
}
