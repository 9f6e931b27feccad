package ingestion

import (
	"strings"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/parsers"
)

// SyntacticMatcher applies four dependency patterns around relation words:
//
//	predicate            "Jane is Elizabeth's sister"
//	prep-of              "Jane, sister of Elizabeth" (head must be PERSON)
//	appositive           "Mr. Bennet, father of Jane"
//	possessive-modifier  "Elizabeth's sister Jane"
//
// Rules are independent; one token may fire several of them.
type SyntacticMatcher struct {
	// DedupeRules collapses identical tuples fired by different rules on
	// the same token.
	DedupeRules bool
}

// MatchSyntactic runs a SyntacticMatcher that keeps every emission.
func MatchSyntactic(doc *parsers.Document) []Relation {
	return SyntacticMatcher{}.Match(doc)
}

// Match reads the dependency structure of doc. It never modifies doc.
func (m SyntacticMatcher) Match(doc *parsers.Document) []Relation {
	var out []Relation
	for i, tok := range doc.Tokens {
		if !isRelationToken(tok) {
			continue
		}

		var found []Relation
		emit := func(rule string, left, right int) {
			found = append(found, Relation{
				Label: tok.Text,
				Left:  mention(doc, left),
				Right: mention(doc, right),
				Rule:  rule,
			})
		}

		if tok.Dep == parsers.DepAttr {
			subj := firstWhere(doc, doc.Lefts(tok.Head), parsers.DepNsubj)
			poss := firstWhere(doc, doc.Children(i), parsers.DepPoss)
			if subj >= 0 && poss >= 0 {
				emit(RulePredicate, subj, poss)
			}
		}

		for _, prep := range ofPreps(doc, i) {
			persons := personChildren(doc, prep)
			if len(persons) > 0 && isPerson(doc, tok.Head) {
				emit(RulePrepositionalOf, tok.Head, persons[0])
			}
		}

		if tok.Dep == parsers.DepAppos && isPerson(doc, tok.Head) {
			for _, prep := range ofPreps(doc, i) {
				for _, p := range personChildren(doc, prep) {
					emit(RuleAppositive, tok.Head, p)
				}
			}
		}

		poss := firstWhere(doc, doc.Children(i), parsers.DepPoss)
		appos := firstWhere(doc, doc.Children(i), parsers.DepAppos)
		if poss >= 0 && appos >= 0 {
			emit(RulePossessiveModifier, appos, poss)
		}

		if m.DedupeRules {
			found = dedupe(found)
		}
		out = append(out, found...)
	}
	return out
}

func isRelationToken(tok parsers.Token) bool {
	if tok.Lemma != "" && aggregate.IsRelation(tok.Lemma) {
		return true
	}
	return aggregate.IsRelation(tok.Text)
}

func isPerson(doc *parsers.Document, i int) bool {
	return i >= 0 && i < len(doc.Tokens) && doc.Tokens[i].EntType == parsers.LabelPerson
}

// firstWhere returns the first token among idx with the given dependency
// label inside a PERSON entity, or -1.
func firstWhere(doc *parsers.Document, idx []int, dep string) int {
	for _, c := range idx {
		if doc.Tokens[c].Dep == dep && isPerson(doc, c) {
			return c
		}
	}
	return -1
}

func ofPreps(doc *parsers.Document, i int) []int {
	var preps []int
	for _, c := range doc.Children(i) {
		t := doc.Tokens[c]
		if t.Dep == parsers.DepPrep && strings.ToLower(t.Text) == "of" {
			preps = append(preps, c)
		}
	}
	return preps
}

func personChildren(doc *parsers.Document, i int) []int {
	var out []int
	for _, c := range doc.Children(i) {
		if isPerson(doc, c) {
			out = append(out, c)
		}
	}
	return out
}

// mention expands a token to the text of its entity span.
func mention(doc *parsers.Document, i int) string {
	if span, ok := doc.EntAt(i); ok {
		return span.Text
	}
	return doc.Tokens[i].Text
}

func dedupe(rels []Relation) []Relation {
	type key struct{ label, left, right string }
	seen := make(map[key]bool, len(rels))
	out := rels[:0]
	for _, r := range rels {
		k := key{r.Label, r.Left, r.Right}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
