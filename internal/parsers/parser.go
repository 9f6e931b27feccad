// Package parsers provides the linguistic annotation model consumed by the
// extraction engine and the annotators that produce it.
//
// A Document is produced once per chunk and then only read. Matchers never
// mutate it; entity re-labelling returns a new Document via WithEnts.
package parsers

import (
	"context"
	"sort"
	"strings"
)

// Entity labels used by the engine. Annotators may emit other labels
// (GPE, ORG, ...); they are carried through but ignored by the matchers.
const (
	LabelPerson       = "PERSON"
	LabelRelationship = "RELATIONSHIP"
)

// Dependency labels the syntactic matcher relies on.
const (
	DepRoot     = "ROOT"
	DepNsubj    = "nsubj"
	DepAttr     = "attr"
	DepPoss     = "poss"
	DepAppos    = "appos"
	DepPrep     = "prep"
	DepPobj     = "pobj"
	DepDobj     = "dobj"
	DepCompound = "compound"
	DepCase     = "case"
	DepDet      = "det"
	DepAmod     = "amod"
	DepPunct    = "punct"
	DepDep      = "dep"
)

// Token is a single annotated token.
type Token struct {
	// Index is the position of the token in the document.
	Index int `json:"i"`

	// Text is the verbatim surface text.
	Text string `json:"text"`

	// Lemma is the base form of the token.
	Lemma string `json:"lemma"`

	// Tag is the fine-grained part-of-speech tag (Penn Treebank).
	Tag string `json:"tag"`

	// Dep is the dependency label linking the token to its head.
	Dep string `json:"dep"`

	// Head is the index of the syntactic head. The root points at itself.
	Head int `json:"head"`

	// EntType is the label of the entity span containing this token, if any.
	EntType string `json:"ent_type"`

	// IsAlpha reports whether the token consists of letters only.
	IsAlpha bool `json:"is_alpha"`

	// Offset is the byte offset of the token in the document text, or -1.
	Offset int `json:"idx"`
}

// Span is a contiguous range of tokens [Start, End) carrying a label.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Len returns the number of tokens in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two spans share at least one token.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether the token index i lies inside the span.
func (s Span) Contains(i int) bool {
	return i >= s.Start && i < s.End
}

// Sentence is a sentence boundary expressed in token indices.
type Sentence struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Document is an annotated chunk of text.
type Document struct {
	Text      string
	Tokens    []Token
	Sentences []Sentence
	Ents      []Span

	children [][]int
}

// Annotator turns raw chunk text into an annotated Document.
type Annotator interface {
	// Annotate tokenizes, tags, parses and recognizes entities in text.
	Annotate(ctx context.Context, text string) (*Document, error)

	// Name returns a short identifier for logs.
	Name() string
}

// NewDocument assembles a Document and builds its child index. Token
// entity types are derived from ents; spans with empty Text get it filled
// from the token range.
func NewDocument(text string, tokens []Token, sentences []Sentence, ents []Span) *Document {
	d := &Document{
		Text:      text,
		Tokens:    tokens,
		Sentences: sentences,
	}
	for i := range d.Tokens {
		d.Tokens[i].Index = i
		h := d.Tokens[i].Head
		if h < 0 || h >= len(d.Tokens) {
			d.Tokens[i].Head = i
		}
	}
	d.children = make([][]int, len(tokens))
	for i, tok := range d.Tokens {
		if tok.Head != i {
			d.children[tok.Head] = append(d.children[tok.Head], i)
		}
	}
	d.Ents = d.fillSpans(ents)
	d.applyEntTypes()
	return d
}

// WithEnts returns a copy of the document whose entity spans are replaced.
// Token entity types are recomputed; the receiver is left untouched.
func (d *Document) WithEnts(ents []Span) *Document {
	tokens := make([]Token, len(d.Tokens))
	copy(tokens, d.Tokens)
	nd := &Document{
		Text:      d.Text,
		Tokens:    tokens,
		Sentences: d.Sentences,
		children:  d.children,
	}
	nd.Ents = nd.fillSpans(ents)
	nd.applyEntTypes()
	return nd
}

func (d *Document) fillSpans(ents []Span) []Span {
	out := make([]Span, 0, len(ents))
	for _, e := range ents {
		if e.Start < 0 || e.End > len(d.Tokens) || e.Start >= e.End {
			continue
		}
		if e.Text == "" {
			e.Text = d.SpanText(e.Start, e.End)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (d *Document) applyEntTypes() {
	for i := range d.Tokens {
		d.Tokens[i].EntType = ""
	}
	for _, e := range d.Ents {
		for i := e.Start; i < e.End; i++ {
			d.Tokens[i].EntType = e.Label
		}
	}
}

// SpanText returns the source text covered by tokens [start, end).
// When offsets are unavailable, token texts are joined with single spaces.
func (d *Document) SpanText(start, end int) string {
	if start < 0 || end > len(d.Tokens) || start >= end {
		return ""
	}
	first, last := d.Tokens[start], d.Tokens[end-1]
	if first.Offset >= 0 && last.Offset >= first.Offset && last.Offset+len(last.Text) <= len(d.Text) {
		return d.Text[first.Offset : last.Offset+len(last.Text)]
	}
	parts := make([]string, 0, end-start)
	for _, tok := range d.Tokens[start:end] {
		parts = append(parts, tok.Text)
	}
	return strings.Join(parts, " ")
}

// Children returns the indices of tokens whose head is token i, in order.
func (d *Document) Children(i int) []int {
	if i < 0 || i >= len(d.children) {
		return nil
	}
	return d.children[i]
}

// Lefts returns the children of token i that precede it.
func (d *Document) Lefts(i int) []int {
	var lefts []int
	for _, c := range d.Children(i) {
		if c < i {
			lefts = append(lefts, c)
		}
	}
	return lefts
}

// EntAt returns the entity span containing token i.
func (d *Document) EntAt(i int) (Span, bool) {
	for _, e := range d.Ents {
		if e.Contains(i) {
			return e, true
		}
		if e.Start > i {
			break
		}
	}
	return Span{}, false
}

// EntsByLabel returns the entity spans carrying any of the given labels,
// in document order.
func (d *Document) EntsByLabel(labels ...string) []Span {
	var out []Span
	for _, e := range d.Ents {
		for _, l := range labels {
			if e.Label == l {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
