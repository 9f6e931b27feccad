package ingestion

import (
	"sort"
	"strings"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/parsers"
)

var titles = map[string]bool{
	"Mr": true, "Mr.": true, "Mrs": true, "Mrs.": true, "Miss": true, "Ms": true,
	"Lady": true, "Sir": true, "Colonel": true, "Capt": true, "Captain": true,
	"Lord": true, "Rev": true, "Rev.": true, "General": true, "Gen.": true,
}

// relationTermMaxTokens bounds multi-token relation terms ("in", "-", "law").
const relationTermMaxTokens = 3

// Normalizer merges honorific + name runs into PERSON spans and tags
// relation words.
type Normalizer struct {
	// ProperNounsOnly stops a title run at the first token not tagged as a
	// proper noun. Off, a run takes every following alphabetic token.
	ProperNounsOnly bool
}

// TitleSpans returns a PERSON span for every title followed by one or more
// alphabetic tokens. Runs are greedy.
func (n Normalizer) TitleSpans(doc *parsers.Document) []parsers.Span {
	var spans []parsers.Span
	toks := doc.Tokens
	for i := 0; i < len(toks); i++ {
		if !titles[toks[i].Text] {
			continue
		}
		j := i + 1
		for j < len(toks) && n.continuesRun(toks[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		spans = append(spans, parsers.Span{Start: i, End: j, Text: doc.SpanText(i, j), Label: parsers.LabelPerson})
		i = j - 1
	}
	return spans
}

func (n Normalizer) continuesRun(tok parsers.Token) bool {
	if !tok.IsAlpha {
		return false
	}
	return !n.ProperNounsOnly || tok.Tag == "NNP" || tok.Tag == "NNPS"
}

// NormalizeSpans merges title spans into the document's entities and
// removes overlaps.
func (n Normalizer) NormalizeSpans(doc *parsers.Document) []parsers.Span {
	spans := append(append([]parsers.Span(nil), doc.Ents...), n.TitleSpans(doc)...)
	return FilterSpans(spans)
}

// Normalize returns a copy of doc whose entities are the existing spans,
// title spans and relation-word spans with overlaps removed.
func (n Normalizer) Normalize(doc *parsers.Document) *parsers.Document {
	spans := append(append([]parsers.Span(nil), doc.Ents...), n.TitleSpans(doc)...)
	spans = append(spans, RelationshipSpans(doc)...)
	return doc.WithEnts(FilterSpans(spans))
}

// TitleSpans runs a default Normalizer.
func TitleSpans(doc *parsers.Document) []parsers.Span {
	return Normalizer{}.TitleSpans(doc)
}

// NormalizeSpans runs a default Normalizer.
func NormalizeSpans(doc *parsers.Document) []parsers.Span {
	return Normalizer{}.NormalizeSpans(doc)
}

// Normalize runs a default Normalizer.
func Normalize(doc *parsers.Document) *parsers.Document {
	return Normalizer{}.Normalize(doc)
}

// RelationshipSpans tags relation words and their known plurals. Hyphenated
// terms split by the tokenizer are matched across adjacent tokens that touch
// in the text; separate words never join into a term.
func RelationshipSpans(doc *parsers.Document) []parsers.Span {
	var spans []parsers.Span
	toks := doc.Tokens
	for i := 0; i < len(toks); i++ {
		for l := relationTermMaxTokens; l >= 1; l-- {
			if i+l > len(toks) || !touching(toks[i:i+l]) {
				continue
			}
			var b strings.Builder
			for _, t := range toks[i : i+l] {
				b.WriteString(t.Text)
			}
			if aggregate.IsRelationTerm(b.String()) {
				spans = append(spans, parsers.Span{Start: i, End: i + l, Text: doc.SpanText(i, i+l), Label: parsers.LabelRelationship})
				i += l - 1
				break
			}
		}
	}
	return spans
}

// touching reports whether each token starts where the previous one ends.
// Tokens without an offset only touch themselves.
func touching(toks []parsers.Token) bool {
	for k := 1; k < len(toks); k++ {
		prev := toks[k-1]
		if prev.Offset < 0 || toks[k].Offset != prev.Offset+len(prev.Text) {
			return false
		}
	}
	return true
}

// FilterSpans keeps the longest spans, ties going to the earliest start, and
// drops every span overlapping one already kept. The result is sorted by
// start and pairwise disjoint.
func FilterSpans(spans []parsers.Span) []parsers.Span {
	arena := append([]parsers.Span(nil), spans...)
	sort.SliceStable(arena, func(i, j int) bool {
		if arena[i].Len() != arena[j].Len() {
			return arena[i].Len() > arena[j].Len()
		}
		return arena[i].Start < arena[j].Start
	})

	var kept []parsers.Span
	taken := make(map[int]bool)
	for _, s := range arena {
		if s.Len() <= 0 {
			continue
		}
		free := true
		for i := s.Start; i < s.End; i++ {
			if taken[i] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for i := s.Start; i < s.End; i++ {
			taken[i] = true
		}
		kept = append(kept, s)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
