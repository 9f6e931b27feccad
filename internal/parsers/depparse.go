package parsers

import (
	"strings"
	"unicode"
)

// Shallow rule-based dependency attachment over POS-tagged tokens.
//
// It produces the handful of arcs the relationship rules read (nsubj, attr,
// poss, appos, prep, pobj) for simple copular and noun-phrase constructions.
// Everything it cannot classify hangs off the sentence root with "dep".

type nounPhrase struct {
	start, end int // token range [start, end)
	head       int
	apposOf    int // index of the phrase this one is in apposition to, or -1
}

var copulas = map[string]bool{
	"be": true,
}

var irregularPlurals = map[string]string{
	"wives":    "wife",
	"children": "child",
	"men":      "man",
	"women":    "woman",
	"aunties":  "auntie",
	"families": "family",
	"parties":  "party",
	"ladies":   "lady",
}

func isNounTag(tag string) bool {
	return strings.HasPrefix(tag, "NN") || tag == "PRP"
}

func isProperTag(tag string) bool {
	return tag == "NNP" || tag == "NNPS"
}

func isCommonNounTag(tag string) bool {
	return tag == "NN" || tag == "NNS"
}

func isNominalTag(tag string) bool {
	switch tag {
	case "DT", "PRP$", "JJ", "JJR", "JJS", "CD", "POS", "PDT":
		return true
	}
	return isNounTag(tag) && tag != "PRP"
}

func isVerbTag(tag string) bool {
	return strings.HasPrefix(tag, "VB")
}

func isPunctTag(tag string, text string) bool {
	if tag == "," || tag == "." || tag == ":" || tag == "``" || tag == "''" || tag == "(" || tag == ")" {
		return true
	}
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return text != ""
}

func isPossessiveMarker(tok Token) bool {
	if tok.Tag == "POS" {
		return true
	}
	switch tok.Text {
	case "'s", "’s", "'", "’":
		return true
	}
	return false
}

// lemmatize returns a lowercase base form for a token.
func lemmatize(text, tag string) string {
	lower := strings.ToLower(text)
	if isVerbTag(tag) {
		switch lower {
		case "is", "was", "are", "were", "am", "be", "been", "being", "'s", "’s", "'re", "'m":
			return "be"
		}
		return lower
	}
	if tag == "NNS" || tag == "NNPS" {
		if base, ok := irregularPlurals[lower]; ok {
			return base
		}
		if strings.HasSuffix(lower, "ies") && len(lower) > 4 {
			return strings.TrimSuffix(lower, "ies") + "y"
		}
		if strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 2 {
			return strings.TrimSuffix(lower, "s")
		}
	}
	return lower
}

func isAlpha(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// attachDependencies fills Head and Dep for every token, sentence by sentence.
func attachDependencies(tokens []Token, sentences []Sentence) {
	if len(sentences) == 0 && len(tokens) > 0 {
		sentences = []Sentence{{Start: 0, End: len(tokens)}}
	}
	for _, s := range sentences {
		attachSentence(tokens, s.Start, s.End)
	}
}

func attachSentence(tokens []Token, start, end int) {
	if start >= end {
		return
	}

	phrases := chunkNounPhrases(tokens, start, end)

	root := -1
	for i := start; i < end; i++ {
		if isVerbTag(tokens[i].Tag) {
			root = i
			break
		}
	}
	if root < 0 {
		if len(phrases) > 0 {
			root = phrases[0].head
		} else {
			root = start
		}
	}

	for i := start; i < end; i++ {
		tokens[i].Head = root
		tokens[i].Dep = DepDep
		if isPunctTag(tokens[i].Tag, tokens[i].Text) {
			tokens[i].Dep = DepPunct
		}
	}
	tokens[root].Head = root
	tokens[root].Dep = DepRoot

	inPhrase := make(map[int]int, end-start)
	roles := make([]string, len(phrases))
	for pi, np := range phrases {
		for i := np.start; i < np.end; i++ {
			inPhrase[i] = pi
		}
		attachPhraseInternals(tokens, np)

		prev := np.start - 1
		switch {
		case np.head == root:
			roles[pi] = DepRoot
		case np.apposOf >= 0:
			tokens[np.head].Head = phrases[np.apposOf].head
			tokens[np.head].Dep = DepAppos
			roles[pi] = DepAppos
		case prev >= start && tokens[prev].Tag == "IN":
			tokens[np.head].Head = prev
			tokens[np.head].Dep = DepPobj
			roles[pi] = DepPobj
		case pi > 0 && prev-1 >= start && tokens[prev].Text == "," && isAppositionPair(tokens, phrases[pi-1], np, prev-1):
			tokens[np.head].Head = phrases[pi-1].head
			tokens[np.head].Dep = DepAppos
			roles[pi] = DepAppos
		}
	}

	subject := -1
	for pi, np := range phrases {
		if roles[pi] == "" && np.end <= root {
			subject = pi
		}
	}
	if subject >= 0 {
		tokens[phrases[subject].head].Head = root
		tokens[phrases[subject].head].Dep = DepNsubj
	}
	for pi, np := range phrases {
		if roles[pi] != "" || np.start <= root {
			continue
		}
		tokens[np.head].Head = root
		if copulas[tokens[root].Lemma] {
			tokens[np.head].Dep = DepAttr
		} else {
			tokens[np.head].Dep = DepDobj
		}
		break
	}

	for i := start; i < end; i++ {
		if tokens[i].Tag != "IN" || i == root {
			continue
		}
		if pi, ok := inPhrase[i-1]; ok && i-1 >= start {
			tokens[i].Head = phrases[pi].head
		} else {
			tokens[i].Head = root
		}
		tokens[i].Dep = DepPrep
	}
}

// chunkNounPhrases groups maximal runs of nominal tokens, then splits them
// at common-noun to proper-noun transitions ("sister Jane").
func chunkNounPhrases(tokens []Token, start, end int) []nounPhrase {
	var phrases []nounPhrase
	i := start
	for i < end {
		if tokens[i].Tag == "PRP" {
			phrases = append(phrases, nounPhrase{start: i, end: i + 1, head: i, apposOf: -1})
			i++
			continue
		}
		if !isNominalTag(tokens[i].Tag) {
			i++
			continue
		}
		j := i
		for j < end && isNominalTag(tokens[j].Tag) {
			j++
		}
		phrases = append(phrases, splitRun(tokens, i, j, len(phrases))...)
		i = j
	}
	return phrases
}

func splitRun(tokens []Token, start, end, base int) []nounPhrase {
	var phrases []nounPhrase
	s := start
	for k := start + 1; k < end; k++ {
		prevTag, tag := tokens[k-1].Tag, tokens[k].Tag
		if isCommonNounTag(prevTag) && (isProperTag(tag) || tag == "DT") {
			phrases = append(phrases, newPhrase(tokens, s, k, -1))
			s = k
		}
	}
	phrases = append(phrases, newPhrase(tokens, s, end, -1))
	for p := 1; p < len(phrases); p++ {
		phrases[p].apposOf = base + p - 1
	}
	return phrases
}

func newPhrase(tokens []Token, start, end, apposOf int) nounPhrase {
	head := end - 1
	for head > start && !isNounTag(tokens[head].Tag) {
		head--
	}
	return nounPhrase{start: start, end: end, head: head, apposOf: apposOf}
}

// attachPhraseInternals links modifiers and possessors to the phrase head.
// Possessive markers split the pre-head tokens into owner segments:
// "Elizabeth 's sister" makes Elizabeth the poss child of sister.
func attachPhraseInternals(tokens []Token, np nounPhrase) {
	segStart := np.start
	for i := np.start; i < np.head; i++ {
		if !isPossessiveMarker(tokens[i]) || i == segStart {
			continue
		}
		owner := newPhrase(tokens, segStart, i, -1).head
		for k := segStart; k < i; k++ {
			if k != owner {
				tokens[k].Head = owner
				tokens[k].Dep = modifierDep(tokens[k].Tag)
			}
		}
		tokens[owner].Head = np.head
		tokens[owner].Dep = DepPoss
		tokens[i].Head = owner
		tokens[i].Dep = DepCase
		segStart = i + 1
	}
	for k := segStart; k < np.head; k++ {
		tokens[k].Head = np.head
		tokens[k].Dep = modifierDep(tokens[k].Tag)
	}
	for k := np.head + 1; k < np.end; k++ {
		tokens[k].Head = np.head
		if isPossessiveMarker(tokens[k]) {
			tokens[k].Dep = DepCase
		} else {
			tokens[k].Dep = modifierDep(tokens[k].Tag)
		}
	}
}

func modifierDep(tag string) string {
	switch {
	case tag == "DT" || tag == "PDT":
		return DepDet
	case tag == "PRP$":
		return DepPoss
	case strings.HasPrefix(tag, "JJ"):
		return DepAmod
	case strings.HasPrefix(tag, "NN"):
		return DepCompound
	}
	return DepDep
}

func isAppositionPair(tokens []Token, left, right nounPhrase, leftEnd int) bool {
	if left.end-1 != leftEnd {
		return false
	}
	return isCommonNounTag(tokens[left.head].Tag) || isCommonNounTag(tokens[right.head].Tag)
}

// Tagged builds a Document from pre-tagged words joined by single spaces.
// Sentences end after ".", "!" and "?" tokens; dependency arcs are attached
// by the rule-based attacher.
func Tagged(words, tags []string, ents []Span) *Document {
	tokens := make([]Token, len(words))
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		tag := ""
		if i < len(tags) {
			tag = tags[i]
		}
		tokens[i] = Token{
			Index:   i,
			Text:    w,
			Lemma:   lemmatize(w, tag),
			Tag:     tag,
			IsAlpha: isAlpha(w),
			Offset:  b.Len(),
		}
		b.WriteString(w)
	}
	text := b.String()

	var sentences []Sentence
	start := 0
	for i, tok := range tokens {
		if tok.Text == "." || tok.Text == "!" || tok.Text == "?" || i == len(tokens)-1 {
			sentences = append(sentences, Sentence{Start: start, End: i + 1})
			start = i + 1
		}
	}
	for i := range sentences {
		s := &sentences[i]
		first, last := tokens[s.Start], tokens[s.End-1]
		s.Text = text[first.Offset : last.Offset+len(last.Text)]
	}

	attachDependencies(tokens, sentences)
	return NewDocument(text, tokens, sentences, ents)
}

func hasDependencies(tokens []Token) bool {
	for _, tok := range tokens {
		if tok.Dep != "" {
			return true
		}
	}
	return false
}
