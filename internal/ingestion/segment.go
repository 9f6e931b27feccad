package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ChunkMode selects how text is divided before extraction.
type ChunkMode string

const (
	ChunkSentence  ChunkMode = "sentence"
	ChunkParagraph ChunkMode = "paragraph"
	ChunkChapter   ChunkMode = "chapter"
	Chunk100Token  ChunkMode = "100token"
	ChunkNone      ChunkMode = "none"
)

// ChunkModes lists the accepted modes.
var ChunkModes = []ChunkMode{ChunkSentence, ChunkParagraph, ChunkChapter, Chunk100Token, ChunkNone}

// ParseChunkMode validates a mode name.
func ParseChunkMode(s string) (ChunkMode, error) {
	m := ChunkMode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ChunkModes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown chunk mode %q", s)
}

const (
	// paragraphMinChars is the length a stripped line must exceed to count
	// as a paragraph.
	paragraphMinChars = 30

	// tokenWindow is the whitespace word count at which a 100token chunk
	// is closed.
	tokenWindow = 100
)

var chapterHeading = regexp.MustCompile(`CHAPTER [IVXLC]+`)

// SentenceSplitter divides text into sentences.
type SentenceSplitter interface {
	SplitSentences(ctx context.Context, text string) ([]string, error)
}

// PunctuationSplitter ends a sentence after ., ! or ?, optionally followed
// by closing quotes or brackets, when whitespace follows. Abbreviated
// titles such as "Mr." do not end a sentence.
type PunctuationSplitter struct{}

var sentenceEnd = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)

// SplitSentences implements SentenceSplitter.
func (PunctuationSplitter) SplitSentences(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if endsWithTitle(text[start : loc[0]+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out, nil
}

func endsWithTitle(s string) bool {
	word := s[strings.LastIndexFunc(s, unicode.IsSpace)+1:]
	return strings.HasSuffix(word, ".") && titles[word]
}

// Segmenter divides text into chunks. A nil Splitter falls back to
// PunctuationSplitter.
type Segmenter struct {
	Splitter SentenceSplitter
}

func (s Segmenter) splitter() SentenceSplitter {
	if s.Splitter == nil {
		return PunctuationSplitter{}
	}
	return s.Splitter
}

// Split returns the non-blank chunks of text in document order.
func (s Segmenter) Split(ctx context.Context, text string, mode ChunkMode) ([]string, error) {
	switch mode {
	case ChunkChapter:
		return nonBlank(chapterHeading.Split(text, -1)), nil
	case ChunkParagraph:
		var out []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); len(line) > paragraphMinChars {
				out = append(out, line)
			}
		}
		return out, nil
	case ChunkSentence:
		return s.splitter().SplitSentences(ctx, text)
	case Chunk100Token:
		sents, err := s.splitter().SplitSentences(ctx, text)
		if err != nil {
			return nil, err
		}
		return windows(sents, tokenWindow), nil
	case ChunkNone, "":
		return nonBlank([]string{text}), nil
	}
	return nil, fmt.Errorf("unknown chunk mode %q", mode)
}

// windows joins consecutive sentences until each group holds at least size
// whitespace-separated words. The last group may be shorter.
func windows(sents []string, size int) []string {
	var (
		out   []string
		group []string
		words int
	)
	for _, sent := range sents {
		group = append(group, sent)
		words += len(strings.Fields(sent))
		if words >= size {
			out = append(out, strings.Join(group, " "))
			group, words = nil, 0
		}
	}
	if len(group) > 0 {
		out = append(out, strings.Join(group, " "))
	}
	return out
}

func nonBlank(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
