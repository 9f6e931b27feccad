package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/graph"
	"github.com/Benny93/kin-go/internal/kb"
	"github.com/Benny93/kin-go/internal/parsers"
	"github.com/Benny93/kin-go/internal/storage"
)

var wordPattern = regexp.MustCompile(`Mrs?\.|[A-Za-z]+|['’]s|[.,!?]`)

var wordTags = map[string]string{
	"is": "VBZ", "of": "IN", "'s": "POS", "’s": "POS",
	"laughed": "VBD", "smiled": "VBD", "danced": "VBD",
	".": ".", "!": ".", "?": ".", ",": ",",
}

// wordAnnotator tags capitalized words as proper nouns and marks the
// configured names as PERSON.
type wordAnnotator struct {
	people map[string]bool
	fail   bool
}

func (a wordAnnotator) Name() string { return "words" }

func (a wordAnnotator) Annotate(ctx context.Context, text string) (*parsers.Document, error) {
	if a.fail {
		return nil, errors.New("annotator down")
	}
	words := wordPattern.FindAllString(text, -1)
	tags := make([]string, len(words))
	var ents []parsers.Span
	for i, w := range words {
		switch tag, ok := wordTags[w]; {
		case ok:
			tags[i] = tag
		case unicode.IsUpper([]rune(w)[0]):
			tags[i] = "NNP"
		default:
			tags[i] = "NN"
		}
		if a.people[w] {
			ents = append(ents, parsers.Span{Start: i, End: i + 1, Label: parsers.LabelPerson})
		}
	}
	return parsers.Tagged(words, tags, ents), nil
}

const novel = "Elizabeth laughed. Jane smiled. She is Elizabeth's sister. Mr. Collins, cousin of Charlotte, danced."

func testAnnotator() wordAnnotator {
	return wordAnnotator{people: map[string]bool{
		"Elizabeth": true, "Jane": true, "Collins": true, "Charlotte": true,
	}}
}

func testKB() *kb.KnowledgeBase {
	return kb.New([]kb.Character{
		{QID: "Q1", Name: "Elizabeth Bennet", Aliases: []string{"Elizabeth", "Lizzy"}},
		{QID: "Q2", Name: "Jane Bennet", Aliases: []string{"Jane"}},
		{QID: "Q3", Name: "Lydia Bennet", Aliases: []string{"Lydia"}},
		{QID: "Q4", Name: "William Collins", Aliases: []string{"Mr. Collins"}},
	})
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Workers = 2
	return opts
}

func findEdge(edges []aggregate.EdgeRow, a, b, rel string) (aggregate.EdgeRow, bool) {
	key, _ := aggregate.NewPairKey(a, b)
	for _, e := range edges {
		if e.Pair == key && e.Relation == rel {
			return e, true
		}
	}
	return aggregate.EdgeRow{}, false
}

func TestLoadText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "novel.txt")
	require.NoError(t, os.WriteFile(path, []byte(novel), 0o644))

	text, err := LoadText(path)
	require.NoError(t, err)
	assert.Equal(t, novel, text)

	_, err = LoadText(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestRunPipeline(t *testing.T) {
	t.Parallel()

	t.Run("EndToEnd", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryBackend()

		var (
			mu     sync.Mutex
			phases []string
		)
		progress := func(phase string, p float64) {
			mu.Lock()
			defer mu.Unlock()
			if p == 0 {
				phases = append(phases, phase)
			}
		}

		g, result, err := RunPipeline(t.Context(), novel, testAnnotator(), testKB(), store, testOptions(), progress)
		require.NoError(t, err)

		assert.Equal(t,
			"Elizabeth laughed.\nJane smiled.\nJane is Elizabeth's sister.\nMr. Collins, cousin of Charlotte, danced.",
			result.Resolved)
		assert.Equal(t, 4, result.SequentialChunks)
		assert.Equal(t, 1, result.SyntacticChunks)
		assert.Equal(t, 4, result.Tuples)
		assert.Equal(t, 4, result.Stats.Kept)

		require.Len(t, result.Rows, 4)
		first := result.Rows[0]
		assert.Equal(t, "cousin", first.Relation)
		assert.Equal(t, "Q4", first.Entity1ID)
		assert.Equal(t, kb.Unresolved, first.Entity2ID)
		assert.Equal(t, "Charlotte", first.Entity2)
		assert.Equal(t, string(ChunkSentence), first.Mode)
		assert.Equal(t, aggregate.SourceSequential, first.Source)
		assert.Equal(t, 3, first.Chunk)

		second := result.Rows[1]
		assert.Equal(t, "sister", second.Relation)
		assert.Equal(t, "Q2", second.Entity1ID)
		assert.Equal(t, "Q1", second.Entity2ID)
		assert.Equal(t, string(Chunk100Token), second.Mode)
		assert.Equal(t, aggregate.SourceSyntactic, second.Source)

		cousin, ok := findEdge(result.Edges, "Q4", kb.Unresolved, "cousin")
		require.True(t, ok)
		assert.Equal(t, 3, cousin.Count)
		sister, ok := findEdge(result.Edges, "Q1", "Q2", "sister")
		require.True(t, ok)
		assert.Equal(t, 1, sister.Count)
		assert.Equal(t, 2, result.Pairs)

		assert.Equal(t, []uint32{0, 2}, result.Mentions.Chunks("Q1"))
		assert.Equal(t, []uint32{1}, result.Mentions.Chunks("Q2"))
		assert.Equal(t, []uint32{3}, result.Mentions.Chunks("Q4"))
		assert.Zero(t, result.Mentions.Count(kb.Unresolved))

		assert.Equal(t, 4, result.Characters)
		assert.Equal(t, 1, result.Communities)
		elizabeth := g.GetNode(graph.GenerateID(graph.NodeCharacter, "Q1"))
		require.NotNil(t, elizabeth)
		assert.Equal(t, "Elizabeth Bennet", elizabeth.Name)
		assert.Equal(t, 2, elizabeth.Mentions)
		assert.Equal(t, float64(graph.MaxNodeSize), elizabeth.Size)
		assert.Equal(t, 0, elizabeth.Community)

		assert.Equal(t, g.NodeCount(), store.NodeCount())
		chunks, err := store.GetMentions(t.Context(), "Q1")
		require.NoError(t, err)
		assert.Equal(t, []uint32{0, 2}, chunks)

		assert.Equal(t, []string{
			"Resolving pronouns", "Segmenting text", "Annotating chunks", "Extracting relations",
			"Aggregating", "Building graph", "Detecting communities", "Loading to storage",
		}, phases)
	})

	t.Run("WithoutCoref", func(t *testing.T) {
		t.Parallel()
		opts := testOptions()
		opts.Coref = false

		_, result, err := RunPipeline(t.Context(), novel, testAnnotator(), testKB(), nil, opts, nil)
		require.NoError(t, err)

		assert.Equal(t, novel, result.Resolved)
		assert.Len(t, result.Rows, 3)
		assert.Equal(t, 1, result.Pairs)
		assert.Zero(t, result.Communities)
	})

	t.Run("Frequency", func(t *testing.T) {
		t.Parallel()
		opts := testOptions()
		opts.Frequency = map[string]int{"Q2": 10}

		g, _, err := RunPipeline(t.Context(), novel, testAnnotator(), testKB(), nil, opts, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, g.GetNode("character:Q2").Mentions)
	})

	t.Run("SameResultAcrossWorkerCounts", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat(novel+" ", 8)

		serial := testOptions()
		serial.Workers = 1
		_, want, err := RunPipeline(t.Context(), text, testAnnotator(), testKB(), nil, serial, nil)
		require.NoError(t, err)

		parallel := testOptions()
		parallel.Workers = 8
		_, got, err := RunPipeline(t.Context(), text, testAnnotator(), testKB(), nil, parallel, nil)
		require.NoError(t, err)

		assert.Equal(t, want.Rows, got.Rows)
		assert.Equal(t, want.Edges, got.Edges)
	})

	t.Run("ProseFullNames", func(t *testing.T) {
		t.Parallel()
		knowledge := kb.New([]kb.Character{
			{QID: "Q10", Name: "Sir William Lucas"},
			{QID: "Q11", Name: "Charlotte Lucas"},
			{QID: "Q12", Name: "Elizabeth Bennet"},
		})

		_, result, err := RunPipeline(t.Context(), "Charlotte Lucas is the friend of Elizabeth Bennet.",
			parsers.NewProseAnnotator(), knowledge, nil, testOptions(), nil)
		require.NoError(t, err)

		require.NotEmpty(t, result.Rows)
		for _, row := range result.Rows {
			assert.NotEqual(t, "Q10", row.Entity1ID)
			assert.NotEqual(t, "Q10", row.Entity2ID)
		}
		friend, ok := findEdge(result.Edges, "Q11", "Q12", "friend")
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"Charlotte Lucas", "Elizabeth Bennet"}, []string{friend.Entity1, friend.Entity2})
	})

	t.Run("AnnotatorError", func(t *testing.T) {
		t.Parallel()
		_, _, err := RunPipeline(t.Context(), novel, wordAnnotator{fail: true}, testKB(), nil, testOptions(), nil)
		assert.ErrorContains(t, err, "annotator down")
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, _, err := RunPipeline(ctx, novel, testAnnotator(), testKB(), nil, testOptions(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("EmptyText", func(t *testing.T) {
		t.Parallel()
		g, result, err := RunPipeline(t.Context(), "", testAnnotator(), nil, nil, testOptions(), nil)
		require.NoError(t, err)
		assert.Zero(t, g.NodeCount())
		assert.Empty(t, result.Rows)
	})
}

func TestRunTuples(t *testing.T) {
	t.Parallel()

	tuples := [][]string{
		{"sister", "Jane", "Elizabeth"},
		{"friends", "Lizzy", "Jane", "sentence", "sequential"},
		{"cousin", "him", "Jane"},
		{"sister", "Jane"},
		{"enemy", "Jane", "Lydia"},
	}
	store := storage.NewMemoryBackend()

	g, result, err := RunTuples(t.Context(), tuples, testKB(), store, testOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Tuples)
	assert.Equal(t, aggregate.Stats{Kept: 2, Relation: 1, Pronoun: 1, BadArity: 1}, result.Stats)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, DefaultMode, result.Rows[0].Mode)
	assert.Equal(t, "sentence", result.Rows[1].Mode)

	edge := g.GetRelationship(graph.EdgeID("Q1", "Q2"))
	require.NotNil(t, edge)
	assert.Equal(t, "friend", edge.Relation)
	assert.Equal(t, map[string]int{"friend": 1, "sister": 1}, edge.Counts)
	assert.Equal(t, 1, result.Communities)
	assert.Equal(t, 3, store.NodeCount())
}

func TestAnnotateAll(t *testing.T) {
	t.Parallel()

	texts := []string{"Mr. Collins danced.", "Jane smiled."}

	t.Run("RawOnly", func(t *testing.T) {
		t.Parallel()
		docs, err := annotateAll(t.Context(), testAnnotator(), texts, nil, 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		for _, d := range docs {
			assert.NotNil(t, d.raw)
			assert.Nil(t, d.normalized)
		}
	})

	t.Run("Normalized", func(t *testing.T) {
		t.Parallel()
		docs, err := annotateAll(t.Context(), testAnnotator(), texts, &Normalizer{ProperNounsOnly: true}, 2)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		require.NotNil(t, docs[0].normalized)
		assert.Equal(t, "Mr. Collins", docs[0].normalized.Ents[0].Text)
		assert.Equal(t, "Jane", docs[1].raw.Tokens[0].Text)
	})
}
