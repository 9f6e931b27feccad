package storage

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "SingleWord", input: "Lydia", expected: []string{"lydia"}},
		{name: "Title", input: "Mr. Darcy", expected: []string{"mr", "darcy", "mrdarcy"}},
		{name: "Apostrophe", input: "O’Brien", expected: []string{"obrien"}},
		{name: "QID", input: "Q42", expected: []string{"q42"}},
		{name: "Empty", input: "   ", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tokenize(tt.input))
		})
	}
}

func TestTokenScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.0, tokenScore("darcy", "darcy", 2))
	assert.Equal(t, 0.5, tokenScore("dar", "darcy", 2))
	assert.Equal(t, 0.0, tokenScore("darcy", "dar", 1))
}

func TestFTSIndex(t *testing.T) {
	// Subtests share one database.
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(t.TempDir(), "fts")).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	defer db.Close()

	idx := NewFTSIndex(db)
	lizzy := character("Q1", "Elizabeth Bennet", "Lizzy")
	jane := character("Q2", "Jane Bennet")
	require.NoError(t, idx.IndexNode(lizzy))
	require.NoError(t, idx.IndexNode(jane))

	t.Run("PrefixMatches", func(t *testing.T) {
		// "eliz" prefixes both "elizabeth" and "elizabethbennet".
		results, err := idx.Search("eliz", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 1.0, results[0].Score)

		results, err = idx.Search("bennet", 10)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("Reindex", func(t *testing.T) {
		before, err := idx.IndexSize()
		require.NoError(t, err)

		require.NoError(t, idx.IndexNode(lizzy))
		after, err := idx.IndexSize()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, idx.RemoveNode(jane.ID))
		results, err := idx.Search("jane", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("NilDB", func(t *testing.T) {
		empty := NewFTSIndex(nil)
		results, err := empty.Search("jane", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NoError(t, empty.IndexNode(jane))
	})
}
