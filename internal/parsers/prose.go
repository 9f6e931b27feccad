package parsers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

// ProseAnnotator annotates text with the prose tokenizer, tagger, segmenter
// and named-entity extractor. Dependency arcs come from a shallow rule-based
// attacher over the POS tags.
type ProseAnnotator struct{}

// NewProseAnnotator creates a ProseAnnotator.
func NewProseAnnotator() *ProseAnnotator {
	return &ProseAnnotator{}
}

// Name implements Annotator.
func (a *ProseAnnotator) Name() string {
	return "prose"
}

// Annotate implements Annotator.
func (a *ProseAnnotator) Annotate(ctx context.Context, text string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return NewDocument(text, nil, nil, nil), nil
	}

	pdoc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("prose annotate: %w", err)
	}

	ptoks := pdoc.Tokens()
	tokens := make([]Token, len(ptoks))
	cursor := 0
	for i, pt := range ptoks {
		offset := -1
		if at := strings.Index(text[cursor:], pt.Text); at >= 0 && pt.Text != "" {
			offset = cursor + at
			cursor = offset + len(pt.Text)
		}
		tokens[i] = Token{
			Index:   i,
			Text:    pt.Text,
			Lemma:   lemmatize(pt.Text, pt.Tag),
			Tag:     pt.Tag,
			IsAlpha: isAlpha(pt.Text),
			Offset:  offset,
		}
	}

	sentences := sentenceRanges(text, tokens, pdoc.Sentences())
	attachDependencies(tokens, sentences)

	ents := locateEntities(tokens, pdoc.Entities())
	if len(ents) == 0 {
		ents = iobSpans(ptoks)
	}

	return NewDocument(text, tokens, sentences, ents), nil
}

// SplitSentences returns prose's sentence segmentation of text without
// tagging or entity extraction.
func (a *ProseAnnotator) SplitSentences(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pdoc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return nil, fmt.Errorf("prose segment: %w", err)
	}
	out := make([]string, 0, len(pdoc.Sentences()))
	for _, s := range pdoc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// sentenceRanges maps prose sentence strings onto token index ranges.
// Tokens without a known offset stay with the sentence being built.
func sentenceRanges(text string, tokens []Token, sents []prose.Sentence) []Sentence {
	if len(tokens) == 0 {
		return nil
	}

	type bound struct{ start, end int }
	bounds := make([]bound, 0, len(sents))
	cursor := 0
	for _, s := range sents {
		at := strings.Index(text[cursor:], s.Text)
		if at < 0 || s.Text == "" {
			continue
		}
		start := cursor + at
		cursor = start + len(s.Text)
		bounds = append(bounds, bound{start, cursor})
	}
	if len(bounds) == 0 {
		return []Sentence{{Start: 0, End: len(tokens), Text: text}}
	}

	out := make([]Sentence, 0, len(bounds))
	tok := 0
	for bi, b := range bounds {
		first := tok
		for tok < len(tokens) {
			off := tokens[tok].Offset
			if off >= 0 && off >= b.end && bi < len(bounds)-1 {
				break
			}
			tok++
		}
		if tok > first {
			out = append(out, Sentence{Start: first, End: tok, Text: text[b.start:b.end]})
		}
	}
	if tok < len(tokens) && len(out) > 0 {
		out[len(out)-1].End = len(tokens)
	}
	return out
}

// iobSpans groups labelled tokens into entity spans. prose tags every
// token of a multi-word name B-, so a B- token directly after one of the
// same label extends the open span.
func iobSpans(ptoks []prose.Token) []Span {
	var spans []Span
	open := -1
	label := ""
	closeSpan := func(end int) {
		if open >= 0 {
			spans = append(spans, Span{Start: open, End: end, Label: label})
		}
		open, label = -1, ""
	}
	for i, pt := range ptoks {
		switch {
		case strings.HasPrefix(pt.Label, "B-") && open >= 0 && strings.TrimPrefix(pt.Label, "B-") == label:
		case strings.HasPrefix(pt.Label, "B-"):
			closeSpan(i)
			open, label = i, strings.TrimPrefix(pt.Label, "B-")
		case strings.HasPrefix(pt.Label, "I-") && open >= 0 && strings.TrimPrefix(pt.Label, "I-") == label:
		default:
			closeSpan(i)
		}
	}
	closeSpan(len(ptoks))
	return spans
}

// locateEntities finds each extracted entity's token range by matching its
// whitespace-separated words against consecutive tokens, left to right.
func locateEntities(tokens []Token, ents []prose.Entity) []Span {
	var spans []Span
	from := 0
	for _, e := range ents {
		words := strings.Fields(e.Text)
		if len(words) == 0 {
			continue
		}
		for i := from; i+len(words) <= len(tokens); i++ {
			match := true
			for k, w := range words {
				if tokens[i+k].Text != w {
					match = false
					break
				}
			}
			if match {
				spans = append(spans, Span{Start: i, End: i + len(words), Label: e.Label})
				from = i + len(words)
				break
			}
		}
	}
	return spans
}
