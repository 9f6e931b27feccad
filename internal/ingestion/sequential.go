package ingestion

import (
	"strings"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/parsers"
)

// Rule names attached to extracted relations.
const (
	RuleSequential         = "sequential"
	RulePredicate          = "predicate"
	RulePrepositionalOf    = "prep-of"
	RuleAppositive         = "appositive"
	RulePossessiveModifier = "possessive-modifier"
)

// Relation is one extracted (label, left, right) tuple.
type Relation struct {
	Label string
	Left  string
	Right string
	Rule  string
}

// Fields returns the tuple as relation, entity1, entity2.
func (r Relation) Fields() []string {
	return []string{r.Label, r.Left, r.Right}
}

// SequentialMatcher pairs each relation word with the nearest PERSON on
// either side of it.
type SequentialMatcher struct {
	// CrossChunkLookback lets the last PERSON of the previous chunk stand in
	// for a missing left neighbour.
	CrossChunkLookback bool
}

// MatchSequential runs a SequentialMatcher without lookback.
func MatchSequential(spans []parsers.Span) []Relation {
	return SequentialMatcher{}.Match(spans, nil)
}

// Match scans one chunk's normalized spans. previous holds the spans of the
// preceding chunk and is only read with CrossChunkLookback set. Pronoun
// mentions are not filtered here.
func (m SequentialMatcher) Match(spans, previous []parsers.Span) []Relation {
	var ents []parsers.Span
	for _, s := range spans {
		if s.Label == parsers.LabelPerson || s.Label == parsers.LabelRelationship {
			ents = append(ents, s)
		}
	}

	var carried *parsers.Span
	if m.CrossChunkLookback {
		for i := len(previous) - 1; i >= 0; i-- {
			if previous[i].Label == parsers.LabelPerson {
				carried = &previous[i]
				break
			}
		}
	}

	var out []Relation
	for i, e := range ents {
		if e.Label != parsers.LabelRelationship || !aggregate.IsRelation(e.Text) {
			continue
		}
		left := nearestPerson(ents, i, -1)
		if left == nil {
			left = carried
		}
		right := nearestPerson(ents, i, +1)
		if left == nil || right == nil {
			continue
		}
		out = append(out, Relation{
			Label: strings.ToLower(e.Text),
			Left:  left.Text,
			Right: right.Text,
			Rule:  RuleSequential,
		})
	}
	return out
}

func nearestPerson(ents []parsers.Span, from, step int) *parsers.Span {
	for j := from + step; j >= 0 && j < len(ents); j += step {
		if ents[j].Label == parsers.LabelPerson {
			return &ents[j]
		}
	}
	return nil
}
