package parsers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func person(start, end int) Span {
	return Span{Start: start, End: end, Label: LabelPerson}
}

func TestNewDocument(t *testing.T) {
	t.Parallel()

	t.Run("FillsSpanTextAndEntTypes", func(t *testing.T) {
		doc := Tagged(
			[]string{"Mr.", "Bennet", "smiled", "."},
			[]string{"NNP", "NNP", "VBD", "."},
			[]Span{person(0, 2)},
		)

		require.Len(t, doc.Ents, 1)
		assert.Equal(t, "Mr. Bennet", doc.Ents[0].Text)
		assert.Equal(t, LabelPerson, doc.Tokens[0].EntType)
		assert.Equal(t, LabelPerson, doc.Tokens[1].EntType)
		assert.Empty(t, doc.Tokens[2].EntType)
	})

	t.Run("DropsInvalidSpansAndSorts", func(t *testing.T) {
		doc := Tagged(
			[]string{"Jane", "and", "Lydia"},
			[]string{"NNP", "CC", "NNP"},
			[]Span{person(2, 3), person(0, 1), person(2, 9), person(1, 1)},
		)

		require.Len(t, doc.Ents, 2)
		assert.Equal(t, "Jane", doc.Ents[0].Text)
		assert.Equal(t, "Lydia", doc.Ents[1].Text)
	})

	t.Run("OutOfRangeHeadPointsAtSelf", func(t *testing.T) {
		doc := NewDocument("a b", []Token{{Text: "a", Head: 7, Offset: 0}, {Text: "b", Head: 0, Offset: 2}}, nil, nil)

		assert.Equal(t, 0, doc.Tokens[0].Head)
		assert.Equal(t, []int{1}, doc.Children(0))
		assert.Nil(t, doc.Children(5))
	})
}

func TestDocument_WithEnts(t *testing.T) {
	t.Parallel()

	doc := Tagged([]string{"Jane", "smiled"}, []string{"NNP", "VBD"}, []Span{person(0, 1)})
	relabelled := doc.WithEnts([]Span{{Start: 1, End: 2, Label: LabelRelationship}})

	assert.Equal(t, LabelPerson, doc.Tokens[0].EntType, "receiver must be untouched")
	assert.Empty(t, relabelled.Tokens[0].EntType)
	assert.Equal(t, LabelRelationship, relabelled.Tokens[1].EntType)
	assert.Equal(t, doc.Children(1), relabelled.Children(1))
}

func TestDocument_SpanText(t *testing.T) {
	t.Parallel()

	t.Run("UsesOffsets", func(t *testing.T) {
		doc := NewDocument("Mr.  Darcy", []Token{{Text: "Mr.", Offset: 0}, {Text: "Darcy", Offset: 5}}, nil, nil)
		assert.Equal(t, "Mr.  Darcy", doc.SpanText(0, 2))
	})

	t.Run("JoinsWithoutOffsets", func(t *testing.T) {
		doc := NewDocument("", []Token{{Text: "Mr.", Offset: -1}, {Text: "Darcy", Offset: -1}}, nil, nil)
		assert.Equal(t, "Mr. Darcy", doc.SpanText(0, 2))
	})

	t.Run("EmptyForBadRange", func(t *testing.T) {
		doc := NewDocument("x", []Token{{Text: "x"}}, nil, nil)
		assert.Empty(t, doc.SpanText(1, 0))
	})
}

func TestDocument_EntsByLabel(t *testing.T) {
	t.Parallel()

	doc := Tagged(
		[]string{"Jane", "'s", "sister", "Kitty"},
		[]string{"NNP", "POS", "NN", "NNP"},
		[]Span{person(0, 1), {Start: 2, End: 3, Label: LabelRelationship}, person(3, 4), {Start: 1, End: 2, Label: "MISC"}},
	)

	people := doc.EntsByLabel(LabelPerson)
	require.Len(t, people, 2)
	assert.Equal(t, "Kitty", people[1].Text)

	both := doc.EntsByLabel(LabelPerson, LabelRelationship)
	assert.Len(t, both, 3)

	span, ok := doc.EntAt(2)
	require.True(t, ok)
	assert.Equal(t, LabelRelationship, span.Label)
}

func TestSpan(t *testing.T) {
	t.Parallel()

	a := Span{Start: 0, End: 2}
	b := Span{Start: 1, End: 3}
	c := Span{Start: 2, End: 4}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Contains(3))
	assert.False(t, c.Contains(4))
}

func TestReadDocuments(t *testing.T) {
	t.Parallel()

	t.Run("AttachesDependenciesWhenMissing", func(t *testing.T) {
		input := `{"text":"Jane is Elizabeth 's sister","tokens":[` +
			`{"text":"Jane","tag":"NNP","idx":0},{"text":"is","tag":"VBZ","idx":5},` +
			`{"text":"Elizabeth","tag":"NNP","idx":8},{"text":"'s","tag":"POS","idx":18},` +
			`{"text":"sister","tag":"NN","idx":21}],` +
			`"ents":[{"start":0,"end":1,"label":"PERSON"},{"start":2,"end":3,"label":"PERSON"}]}` + "\n\n"

		docs, err := ReadDocuments(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, docs, 1)

		doc := docs[0]
		assert.Equal(t, DepAttr, doc.Tokens[4].Dep)
		assert.Equal(t, DepNsubj, doc.Tokens[0].Dep)
		assert.Equal(t, DepPoss, doc.Tokens[2].Dep)
		assert.Equal(t, "Elizabeth", doc.Ents[1].Text)
	})

	t.Run("KeepsProvidedArcs", func(t *testing.T) {
		input := `{"text":"a b","tokens":[{"text":"a","dep":"ROOT","head":0,"idx":0},{"text":"b","dep":"dobj","head":0,"idx":2}]}`

		docs, err := ReadDocuments(strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, "dobj", docs[0].Tokens[1].Dep)
		assert.Equal(t, []int{1}, docs[0].Children(0))
	})

	t.Run("ReportsLine", func(t *testing.T) {
		_, err := ReadDocuments(strings.NewReader("{}\n{oops"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		doc := Tagged([]string{"Jane", "smiled", "."}, []string{"NNP", "VBD", "."}, []Span{person(0, 1)})

		var buf bytes.Buffer
		require.NoError(t, WriteDocuments(&buf, []*Document{doc}))

		docs, err := ReadDocuments(&buf)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, doc.Tokens, docs[0].Tokens)
		assert.Equal(t, doc.Ents, docs[0].Ents)
	})
}

func TestStaticAnnotator(t *testing.T) {
	t.Parallel()

	doc := Tagged([]string{"Jane"}, []string{"NNP"}, nil)

	t.Run("ServesKnownText", func(t *testing.T) {
		a := NewStaticAnnotator([]*Document{doc}, nil)
		got, err := a.Annotate(context.Background(), "Jane")
		require.NoError(t, err)
		assert.Same(t, doc, got)
	})

	t.Run("ErrorsWithoutFallback", func(t *testing.T) {
		a := NewStaticAnnotator(nil, nil)
		_, err := a.Annotate(context.Background(), "Lydia")
		assert.ErrorIs(t, err, ErrNotAnnotated)
	})

	t.Run("Delegates", func(t *testing.T) {
		a := NewStaticAnnotator(nil, NewStaticAnnotator([]*Document{doc}, nil))
		got, err := a.Annotate(context.Background(), "Jane")
		require.NoError(t, err)
		assert.Same(t, doc, got)
	})
}
