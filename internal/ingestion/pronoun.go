package ingestion

import (
	"regexp"
	"strings"

	"github.com/Benny93/kin-go/internal/parsers"
)

// PronounMemoryCap is the number of names the pronoun memory holds.
const PronounMemoryCap = 5

// PronounMemory holds the most recently first-seen distinct PERSON names,
// most recent last. The zero value is empty and ready to use.
type PronounMemory struct {
	names []string
}

// Names returns a copy of the memory, oldest first.
func (m PronounMemory) Names() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of names held.
func (m PronounMemory) Len() int {
	return len(m.names)
}

// Current returns the referent used for substitution.
func (m PronounMemory) Current() (string, bool) {
	if len(m.names) == 0 {
		return "", false
	}
	return m.names[len(m.names)-1], true
}

// Observe returns a new memory with the unseen names appended in order and
// the oldest entries evicted beyond PronounMemoryCap.
func (m PronounMemory) Observe(names ...string) PronounMemory {
	next := m.Names()
	for _, n := range names {
		if !contains(next, n) {
			next = append(next, n)
		}
	}
	if len(next) > PronounMemoryCap {
		next = next[len(next)-PronounMemoryCap:]
	}
	return PronounMemory{names: next}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	possessivePronouns = regexp.MustCompile(`(?i)\b(?:his|her)\b`)
	subjectPronouns    = regexp.MustCompile(`(?i)\b(?:he|him|she)\b`)
)

// MakePossessive inflects a name: "Bennet" becomes "Bennet’s" and
// "Collins" becomes "Collins’".
func MakePossessive(name string) string {
	if strings.HasSuffix(name, "s") {
		return name + "’"
	}
	return name + "’s"
}

// ResolvePronouns runs a PronounResolver with the default Normalizer.
func ResolvePronouns(mem PronounMemory, chunkText string, doc *parsers.Document) (string, PronounMemory) {
	return PronounResolver{}.Resolve(mem, chunkText, doc)
}

// PronounResolver is the last-mentioned-name pronoun heuristic.
type PronounResolver struct {
	Normalizer Normalizer
}

// Resolve substitutes pronouns in one chunk with the current referent. doc
// is the chunk's annotation; its normalized PERSON spans feed the memory
// before substitution. Possessives are replaced first, then he, him and
// she. Every pronoun maps to the same referent.
func (r PronounResolver) Resolve(mem PronounMemory, chunkText string, doc *parsers.Document) (string, PronounMemory) {
	var people []string
	if doc != nil {
		for _, s := range r.Normalizer.NormalizeSpans(doc) {
			if s.Label == parsers.LabelPerson {
				people = append(people, s.Text)
			}
		}
	}
	mem = mem.Observe(people...)

	name, ok := mem.Current()
	if !ok {
		return chunkText, mem
	}
	name = strings.TrimSpace(name)
	out := possessivePronouns.ReplaceAllLiteralString(chunkText, MakePossessive(name))
	out = subjectPronouns.ReplaceAllLiteralString(out, name)
	return out, mem
}
