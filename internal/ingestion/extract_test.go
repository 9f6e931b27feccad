package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/kin-go/internal/parsers"
)

func person(start, end int) parsers.Span {
	return parsers.Span{Start: start, End: end, Label: parsers.LabelPerson}
}

func labelled(text, label string) parsers.Span {
	return parsers.Span{Text: text, Label: label}
}

// Mr. Bennet , father of Jane , smiled .
func bennetDoc() *parsers.Document {
	return parsers.Tagged(
		[]string{"Mr.", "Bennet", ",", "father", "of", "Jane", ",", "smiled", "."},
		[]string{"NNP", "NNP", ",", "NN", "IN", "NNP", ",", "VBD", "."},
		[]parsers.Span{person(1, 2), person(5, 6)},
	)
}

func TestNormalizer(t *testing.T) {
	t.Parallel()

	t.Run("MergesTitles", func(t *testing.T) {
		t.Parallel()
		got := Normalize(bennetDoc())

		require.Len(t, got.Ents, 3)
		assert.Equal(t, parsers.Span{Start: 0, End: 2, Text: "Mr. Bennet", Label: parsers.LabelPerson}, got.Ents[0])
		assert.Equal(t, parsers.Span{Start: 3, End: 4, Text: "father", Label: parsers.LabelRelationship}, got.Ents[1])
		assert.Equal(t, "Jane", got.Ents[2].Text)
		assert.Equal(t, parsers.LabelPerson, got.Tokens[0].EntType)
	})

	t.Run("Disjoint", func(t *testing.T) {
		t.Parallel()
		got := Normalize(bennetDoc())
		for i := 1; i < len(got.Ents); i++ {
			assert.LessOrEqual(t, got.Ents[i-1].End, got.Ents[i].Start)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		once := Normalize(bennetDoc())
		twice := Normalize(once)
		assert.Equal(t, once.Ents, twice.Ents)
	})

	t.Run("LeavesInputUntouched", func(t *testing.T) {
		t.Parallel()
		doc := bennetDoc()
		_ = Normalize(doc)
		require.Len(t, doc.Ents, 2)
		assert.Empty(t, doc.Tokens[0].EntType)
	})

	t.Run("GreedyRun", func(t *testing.T) {
		t.Parallel()
		doc := parsers.Tagged(
			[]string{"Mr.", "Bennet", "smiled", "."},
			[]string{"NNP", "NNP", "VBD", "."},
			nil,
		)

		spans := TitleSpans(doc)
		require.Len(t, spans, 1)
		assert.Equal(t, "Mr. Bennet smiled", spans[0].Text)

		spans = Normalizer{ProperNounsOnly: true}.TitleSpans(doc)
		require.Len(t, spans, 1)
		assert.Equal(t, "Mr. Bennet", spans[0].Text)
	})

	t.Run("BareTitle", func(t *testing.T) {
		t.Parallel()
		doc := parsers.Tagged([]string{"Sir", "!"}, []string{"NNP", "."}, nil)
		assert.Empty(t, TitleSpans(doc))
	})

	t.Run("RelationTerms", func(t *testing.T) {
		t.Parallel()
		doc := annotated("her sisters and brother-in-law",
			[]string{"her", "sisters", "and", "brother", "-", "in", "-", "law"},
			[]string{"PRP$", "NNS", "CC", "NN", "HYPH", "IN", "HYPH", "NN"},
		)
		spans := RelationshipSpans(doc)
		require.Len(t, spans, 3)
		assert.Equal(t, "sisters", spans[0].Text)
		assert.Equal(t, "brother", spans[1].Text)
		assert.Equal(t, "in-law", spans[2].Text)
		assert.Equal(t, 5, spans[2].Start)
		assert.Equal(t, 8, spans[2].End)
	})

	t.Run("SeparateWordsDoNotJoin", func(t *testing.T) {
		t.Parallel()
		doc := parsers.Tagged(
			[]string{"Jane", "grew", "fat", "her", "sister", "Anne"},
			[]string{"NNP", "VBD", "JJ", "PRP$", "NN", "NNP"},
			nil,
		)
		spans := RelationshipSpans(doc)
		require.Len(t, spans, 1)
		assert.Equal(t, "sister", spans[0].Text)
		assert.Equal(t, 4, spans[0].Start)
	})

	t.Run("UnknownOffsetsDoNotJoin", func(t *testing.T) {
		t.Parallel()
		doc := parsers.Tagged([]string{"grand", "mother"}, []string{"JJ", "NN"}, nil)
		for i := range doc.Tokens {
			doc.Tokens[i].Offset = -1
		}
		for _, sp := range RelationshipSpans(doc) {
			assert.Equal(t, 1, sp.Len())
		}
	})
}

// annotated builds a document whose token offsets follow text, so tokens
// written without a space between them touch.
func annotated(text string, words, tags []string) *parsers.Document {
	tokens := make([]parsers.Token, len(words))
	cursor := 0
	for i, w := range words {
		at := strings.Index(text[cursor:], w)
		tokens[i] = parsers.Token{Index: i, Text: w, Lemma: strings.ToLower(w), Tag: tags[i], IsAlpha: w != "-", Offset: cursor + at}
		cursor += at + len(w)
	}
	return parsers.NewDocument(text, tokens, []parsers.Sentence{{Start: 0, End: len(tokens), Text: text}}, nil)
}

func TestFilterSpans(t *testing.T) {
	t.Parallel()

	spans := []parsers.Span{
		{Start: 1, End: 2, Label: "A"},
		{Start: 0, End: 2, Label: "B"},
		{Start: 3, End: 5, Label: "C"},
		{Start: 4, End: 6, Label: "D"},
		{Start: 6, End: 6, Label: "E"},
	}
	got := FilterSpans(spans)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Label)
	assert.Equal(t, "C", got[1].Label)
}

func TestPronounMemory(t *testing.T) {
	t.Parallel()

	var mem PronounMemory
	_, ok := mem.Current()
	assert.False(t, ok)

	mem = mem.Observe("Jane", "Lydia", "Jane")
	assert.Equal(t, []string{"Jane", "Lydia"}, mem.Names())

	mem = mem.Observe("Kitty", "Mary", "Elizabeth", "Charlotte")
	assert.Equal(t, PronounMemoryCap, mem.Len())
	assert.Equal(t, []string{"Lydia", "Kitty", "Mary", "Elizabeth", "Charlotte"}, mem.Names())

	again := mem.Observe("Lydia")
	assert.Equal(t, mem.Names(), again.Names())
	current, ok := again.Current()
	assert.True(t, ok)
	assert.Equal(t, "Charlotte", current)
}

func TestMakePossessive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bennet’s", MakePossessive("Bennet"))
	assert.Equal(t, "Collins’", MakePossessive("Collins"))
}

func TestPronounResolver(t *testing.T) {
	t.Parallel()

	doc := parsers.Tagged(
		[]string{"Jane", "smiled", "."},
		[]string{"NNP", "VBD", "."},
		[]parsers.Span{person(0, 1)},
	)

	t.Run("Substitutes", func(t *testing.T) {
		t.Parallel()
		out, mem := ResolvePronouns(PronounMemory{}, "Then she told her sister there that he knew him.", doc)
		assert.Equal(t, "Then Jane told Jane’s sister there that Jane knew Jane.", out)
		assert.Equal(t, []string{"Jane"}, mem.Names())
	})

	t.Run("EmptyMemory", func(t *testing.T) {
		t.Parallel()
		out, mem := ResolvePronouns(PronounMemory{}, "She laughed.", nil)
		assert.Equal(t, "She laughed.", out)
		assert.Zero(t, mem.Len())
	})

	t.Run("CarriesMemory", func(t *testing.T) {
		t.Parallel()
		mem := PronounMemory{}.Observe("Mr. Darcy")
		out, _ := ResolvePronouns(mem, "He bowed.", nil)
		assert.Equal(t, "Mr. Darcy bowed.", out)
	})

	t.Run("UsesTitleSpans", func(t *testing.T) {
		t.Parallel()
		out, mem := ResolvePronouns(PronounMemory{}, "Mr. Bennet , father of Jane , smiled . He left.", bennetDoc())
		assert.Equal(t, []string{"Mr. Bennet", "Jane"}, mem.Names())
		assert.Equal(t, "Mr. Bennet , father of Jane , smiled . Jane left.", out)
	})
}

func TestSequentialMatcher(t *testing.T) {
	t.Parallel()

	t.Run("NearestOnEachSide", func(t *testing.T) {
		t.Parallel()
		spans := []parsers.Span{
			labelled("Mr. Bennet", parsers.LabelPerson),
			labelled("Elizabeth", parsers.LabelPerson),
			labelled("London", "GPE"),
			labelled("Sister", parsers.LabelRelationship),
			labelled("Jane", parsers.LabelPerson),
		}
		got := MatchSequential(spans)
		assert.Equal(t, []Relation{{Label: "sister", Left: "Elizabeth", Right: "Jane", Rule: RuleSequential}}, got)
	})

	t.Run("OneSidedDropped", func(t *testing.T) {
		t.Parallel()
		spans := []parsers.Span{
			labelled("sister", parsers.LabelRelationship),
			labelled("Jane", parsers.LabelPerson),
			labelled("friend", parsers.LabelRelationship),
		}
		assert.Empty(t, MatchSequential(spans))
	})

	t.Run("PluralsSkipped", func(t *testing.T) {
		t.Parallel()
		spans := []parsers.Span{
			labelled("Elizabeth", parsers.LabelPerson),
			labelled("sisters", parsers.LabelRelationship),
			labelled("Jane", parsers.LabelPerson),
		}
		assert.Empty(t, MatchSequential(spans))
	})

	t.Run("Lookback", func(t *testing.T) {
		t.Parallel()
		previous := []parsers.Span{
			labelled("Lydia", parsers.LabelPerson),
			labelled("Kitty", parsers.LabelPerson),
			labelled("aunt", parsers.LabelRelationship),
		}
		spans := []parsers.Span{
			labelled("cousin", parsers.LabelRelationship),
			labelled("Jane", parsers.LabelPerson),
		}

		assert.Empty(t, SequentialMatcher{}.Match(spans, previous))

		got := SequentialMatcher{CrossChunkLookback: true}.Match(spans, previous)
		assert.Equal(t, []Relation{{Label: "cousin", Left: "Kitty", Right: "Jane", Rule: RuleSequential}}, got)
	})

	t.Run("Fields", func(t *testing.T) {
		t.Parallel()
		r := Relation{Label: "wife", Left: "Mrs. Bennet", Right: "Mr. Bennet", Rule: RuleSequential}
		assert.Equal(t, []string{"wife", "Mrs. Bennet", "Mr. Bennet"}, r.Fields())
	})
}

func TestSyntacticMatcher(t *testing.T) {
	t.Parallel()

	t.Run("Predicate", func(t *testing.T) {
		t.Parallel()
		doc := Normalize(parsers.Tagged(
			[]string{"Jane", "is", "Elizabeth", "'s", "sister", "."},
			[]string{"NNP", "VBZ", "NNP", "POS", "NN", "."},
			[]parsers.Span{person(0, 1), person(2, 3)},
		))
		got := MatchSyntactic(doc)
		assert.Equal(t, []Relation{{Label: "sister", Left: "Jane", Right: "Elizabeth", Rule: RulePredicate}}, got)
	})

	t.Run("AppositiveAndPrepOf", func(t *testing.T) {
		t.Parallel()
		doc := Normalize(bennetDoc())

		got := MatchSyntactic(doc)
		require.Len(t, got, 2)
		assert.Equal(t, Relation{Label: "father", Left: "Mr. Bennet", Right: "Jane", Rule: RulePrepositionalOf}, got[0])
		assert.Equal(t, Relation{Label: "father", Left: "Mr. Bennet", Right: "Jane", Rule: RuleAppositive}, got[1])

		deduped := SyntacticMatcher{DedupeRules: true}.Match(doc)
		assert.Len(t, deduped, 1)
	})

	t.Run("PossessiveModifier", func(t *testing.T) {
		t.Parallel()
		doc := Normalize(parsers.Tagged(
			[]string{"Elizabeth", "'s", "sister", "Jane", "laughed", "."},
			[]string{"NNP", "POS", "NN", "NNP", "VBD", "."},
			[]parsers.Span{person(0, 1), person(3, 4)},
		))
		got := MatchSyntactic(doc)
		assert.Equal(t, []Relation{{Label: "sister", Left: "Jane", Right: "Elizabeth", Rule: RulePossessiveModifier}}, got)
	})

	t.Run("NoPersonNoRelation", func(t *testing.T) {
		t.Parallel()
		doc := Normalize(parsers.Tagged(
			[]string{"Jane", "is", "Elizabeth", "'s", "sister", "."},
			[]string{"NNP", "VBZ", "NNP", "POS", "NN", "."},
			nil,
		))
		assert.Empty(t, MatchSyntactic(doc))
	})

	t.Run("DoesNotMutate", func(t *testing.T) {
		t.Parallel()
		doc := Normalize(bennetDoc())
		before := append([]parsers.Token(nil), doc.Tokens...)
		_ = MatchSyntactic(doc)
		assert.Equal(t, before, doc.Tokens)
	})
}
