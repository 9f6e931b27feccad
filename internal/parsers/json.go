package parsers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// documentJSON is the on-disk shape of a pre-annotated chunk, one JSON
// object per line.
type documentJSON struct {
	Text      string     `json:"text"`
	Tokens    []Token    `json:"tokens"`
	Sentences []Sentence `json:"sents"`
	Ents      []Span     `json:"ents"`
}

// MarshalJSON encodes the document in the pre-annotated line format.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{
		Text:      d.Text,
		Tokens:    d.Tokens,
		Sentences: d.Sentences,
		Ents:      d.Ents,
	})
}

// UnmarshalJSON decodes a pre-annotated document and rebuilds its indexes.
// Documents that carry POS tags but no dependency labels get arcs from the
// rule-based attacher.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !hasOffsets(raw.Tokens) {
		for i := range raw.Tokens {
			raw.Tokens[i].Offset = -1
		}
	}
	if len(raw.Sentences) == 0 && len(raw.Tokens) > 0 {
		raw.Sentences = []Sentence{{Start: 0, End: len(raw.Tokens), Text: raw.Text}}
	}
	if !hasDependencies(raw.Tokens) {
		for i := range raw.Tokens {
			if raw.Tokens[i].Lemma == "" {
				raw.Tokens[i].Lemma = lemmatize(raw.Tokens[i].Text, raw.Tokens[i].Tag)
			}
		}
		attachDependencies(raw.Tokens, raw.Sentences)
	}
	*d = *NewDocument(raw.Text, raw.Tokens, raw.Sentences, raw.Ents)
	return nil
}

// hasOffsets reports whether the "idx" field was populated. A document of
// more than one token whose offsets are all zero was written without them.
func hasOffsets(tokens []Token) bool {
	if len(tokens) < 2 {
		return true
	}
	for _, tok := range tokens[1:] {
		if tok.Offset != 0 {
			return true
		}
	}
	return false
}

// ReadDocuments decodes newline-delimited pre-annotated documents.
func ReadDocuments(r io.Reader) ([]*Document, error) {
	var docs []*Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, &d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}

// WriteDocuments encodes documents one per line.
func WriteDocuments(w io.Writer, docs []*Document) error {
	enc := json.NewEncoder(w)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}

// ErrNotAnnotated is returned by a StaticAnnotator without fallback when
// asked for text it holds no annotation for.
var ErrNotAnnotated = errors.New("no annotation for text")

// StaticAnnotator serves pre-annotated documents keyed by their text and
// delegates everything else to Fallback, if set.
type StaticAnnotator struct {
	docs     map[string]*Document
	Fallback Annotator
}

// NewStaticAnnotator indexes docs by their text.
func NewStaticAnnotator(docs []*Document, fallback Annotator) *StaticAnnotator {
	m := make(map[string]*Document, len(docs))
	for _, d := range docs {
		m[d.Text] = d
	}
	return &StaticAnnotator{docs: m, Fallback: fallback}
}

// Name implements Annotator.
func (a *StaticAnnotator) Name() string {
	return "static"
}

// Annotate implements Annotator.
func (a *StaticAnnotator) Annotate(ctx context.Context, text string) (*Document, error) {
	if d, ok := a.docs[text]; ok {
		return d, nil
	}
	if a.Fallback != nil {
		return a.Fallback.Annotate(ctx, text)
	}
	return nil, fmt.Errorf("%w: %.40q", ErrNotAnnotated, text)
}
