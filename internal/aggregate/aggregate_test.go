package aggregate

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/kin-go/internal/kb"
)

func testKB() *kb.KnowledgeBase {
	return kb.New([]kb.Character{
		{QID: "Q1", Name: "Elizabeth Bennet", Aliases: []string{"Lizzy"}},
		{QID: "Q2", Name: "Jane Bennet"},
		{QID: "Q3", Name: "Mr. Darcy", Aliases: []string{"Darcy"}},
		{QID: "Q4", Name: "Mr. Bennet"},
	})
}

func rec(t *testing.T, fields ...string) Record {
	t.Helper()
	r, err := NewRecord(fields, Defaults{Mode: "sentence", Source: SourceSequential})
	require.NoError(t, err)
	return r
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	d := Defaults{Mode: "100token", Source: SourceSyntactic}

	t.Run("ThreeFieldsTakeDefaults", func(t *testing.T) {
		r, err := NewRecord([]string{"sister", "Jane", "Lizzy"}, d)
		require.NoError(t, err)
		assert.Equal(t, Record{Relation: "sister", Entity1: "Jane", Entity2: "Lizzy", Mode: "100token", Source: SourceSyntactic, Chunk: -1}, r)
	})

	t.Run("FourFieldsCarrySource", func(t *testing.T) {
		r, err := NewRecord([]string{"sister", "Jane", "Lizzy", "manual"}, d)
		require.NoError(t, err)
		assert.Equal(t, "manual", r.Source)
		assert.Equal(t, "100token", r.Mode)
	})

	t.Run("FiveFieldsCarryModeAndSource", func(t *testing.T) {
		r, err := NewRecord([]string{"sister", "Jane", "Lizzy", "chapter", "manual"}, d)
		require.NoError(t, err)
		assert.Equal(t, "chapter", r.Mode)
		assert.Equal(t, "manual", r.Source)
	})

	t.Run("BlankSourceWithoutDefault", func(t *testing.T) {
		r, err := NewRecord([]string{"sister", "Jane", "Lizzy", " "}, Defaults{})
		require.NoError(t, err)
		assert.Equal(t, SourceUnknown, r.Source)
	})

	t.Run("UnexpectedArity", func(t *testing.T) {
		for _, fields := range [][]string{nil, {"sister", "Jane"}, {"a", "b", "c", "d", "e", "f"}} {
			_, err := NewRecord(fields, d)
			assert.ErrorIs(t, err, ErrUnexpectedArity)
		}
	})
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sister", Canonical("Sisters"))
	assert.Equal(t, "wife", Canonical("wives"))
	assert.Equal(t, "aunt", Canonical(" AUNT "))
	assert.Equal(t, "aunts", Canonical("aunts"), "unmapped plurals pass through")
	assert.Equal(t, "fiancé", Canonical("Fiancé"))

	assert.True(t, IsRelation("Cousin"))
	assert.False(t, IsRelation("cousins"))
	assert.True(t, IsRelationTerm("cousin"))
	assert.True(t, IsRelationTerm("Daughters"))
	assert.False(t, IsRelationTerm("butler"))
}

func TestConsolidateRecord(t *testing.T) {
	t.Parallel()

	k := testKB()

	cases := []struct {
		name   string
		fields []string
		want   DropReason
	}{
		{"Kept", []string{"sister", "Jane", "Lizzy"}, Kept},
		{"PluralFolded", []string{"Sisters", "Jane", "Lizzy"}, Kept},
		{"NotARelation", []string{"butler", "Jane", "Lizzy"}, DropRelation},
		{"PronounLeft", []string{"sister", "Her", "Lizzy"}, DropPronoun},
		{"PronounRight", []string{"friend", "Darcy", "them"}, DropPronoun},
		{"SelfPair", []string{"friend", "Darcy", "Mr. Darcy"}, DropSelfPair},
		{"BothUnresolved", []string{"friend", "Mr. Collins", "Charlotte"}, DropSelfPair},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, reason := ConsolidateRecord(rec(t, tc.fields...), k)
			assert.Equal(t, tc.want, reason, reason.String())
		})
	}

	t.Run("UnknownMentionRetained", func(t *testing.T) {
		row, reason := ConsolidateRecord(rec(t, "cousin", "Mr.  Collins", "Lizzy"), k)
		require.Equal(t, Kept, reason)
		assert.Equal(t, kb.Unresolved, row.Entity1ID)
		assert.Equal(t, "Mr. Collins", row.Entity1)
		assert.Equal(t, "Q1", row.Entity2ID)
		assert.Equal(t, "Elizabeth Bennet", row.Entity2)
		assert.Equal(t, "cousin", row.Relation)
		assert.Equal(t, "sentence", row.Mode)
		assert.Equal(t, SourceSequential, row.Source)
	})
}

func TestConsolidateTuples(t *testing.T) {
	t.Parallel()

	rows, stats := ConsolidateTuples([][]string{
		{"sister", "Jane", "Lizzy"},
		{"sister", "Jane"},
		{"friend", "his", "Darcy"},
		{"daughter", "Lizzy", "Mr. Bennet", "chapter", "manual"},
	}, Defaults{Mode: "sentence"}, testKB())

	require.Len(t, rows, 2)
	assert.Equal(t, Stats{Kept: 2, Pronoun: 1, BadArity: 1}, stats)
	assert.Equal(t, SourceUnknown, rows[0].Source)
	assert.Equal(t, "chapter", rows[1].Mode)
}

func TestAggregator_EndToEnd(t *testing.T) {
	t.Parallel()

	rows, _ := Consolidate([]Record{
		rec(t, "sister", "Jane Bennet", "Elizabeth Bennet"),
		rec(t, "sisters", "Elizabeth Bennet", "Jane Bennet"),
	}, testKB())

	agg := NewAggregator()
	agg.AddAll(rows)

	edges := agg.Rows()
	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, PairKey{A: "Q1", B: "Q2"}, e.Pair)
	assert.Equal(t, "sister", e.Relation)
	assert.Equal(t, 2, e.Count)
	assert.Equal(t, 2, e.Total)
	assert.Equal(t, 1, e.Unique)
	assert.Equal(t, "Elizabeth Bennet", e.Entity1)
	assert.Equal(t, "Jane Bennet", e.Entity2)
}

func TestAggregator_OrderIndependent(t *testing.T) {
	t.Parallel()

	k := testKB()
	var records []Record
	for _, f := range [][]string{
		{"sister", "Jane", "Lizzy"},
		{"friend", "Darcy", "Lizzy"},
		{"husband", "Darcy", "Elizabeth Bennet"},
		{"father", "Mr. Bennet", "Jane"},
		{"father", "Mr. Bennet", "Lizzy"},
		{"sister", "Lizzy", "Jane"},
		{"cousin", "Mr. Collins", "Lizzy"},
		{"friend", "Lizzy", "Darcy"},
	} {
		records = append(records, rec(t, f...))
	}
	rows, _ := Consolidate(records, k)

	base := NewAggregator()
	base.AddAll(rows)
	want := base.Rows()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]Row(nil), rows...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		agg := NewAggregator()
		agg.AddAll(shuffled)
		assert.Equal(t, want, agg.Rows())
	}

	t.Run("ConcurrentMerge", func(t *testing.T) {
		total := NewAggregator()
		var wg sync.WaitGroup
		for _, r := range rows {
			wg.Add(1)
			go func(r Row) {
				defer wg.Done()
				local := NewAggregator()
				local.Add(r)
				total.Merge(local)
			}(r)
		}
		wg.Wait()
		assert.Equal(t, want, total.Rows())
	})
}

func TestAggregator_SelfPairExcluded(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	assert.False(t, agg.Add(Row{Relation: "friend", Entity1ID: "Q3", Entity2ID: "Q3"}))
	assert.True(t, agg.Add(Row{Relation: "friend", Entity1ID: "Q3", Entity2ID: "Q1"}))

	for _, e := range agg.Rows() {
		assert.NotEqual(t, e.Entity1ID, e.Entity2ID)
	}
	assert.Equal(t, 1, agg.Pairs())
}

func TestPairKey(t *testing.T) {
	t.Parallel()

	k1, ok := NewPairKey("Q9", "Q1")
	require.True(t, ok)
	k2, _ := NewPairKey("Q1", "Q9")
	assert.Equal(t, k1, k2)
	assert.Equal(t, "Q1|Q9", k1.String())

	parsed, ok := ParsePairKey("Q9|Q1")
	require.True(t, ok)
	assert.Equal(t, k1, parsed)

	_, ok = ParsePairKey("Q1")
	assert.False(t, ok)
	_, ok = NewPairKey("Q1", "Q1")
	assert.False(t, ok)
}

func TestPivot(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	add := func(rel, a, b string, n int) {
		for i := 0; i < n; i++ {
			agg.Add(Row{Relation: rel, Entity1ID: a, Entity2ID: b})
		}
	}
	add("sister", "Q1", "Q2", 3)
	add("friend", "Q1", "Q2", 1)
	add("friend", "Q1", "Q3", 2)
	add("husband", "Q1", "Q3", 2)

	p := BuildPivot(agg.Rows())
	assert.Equal(t, []string{"friend", "husband", "sister"}, p.Relations)
	require.Len(t, p.Pairs, 2)
	assert.Equal(t, []int{1, 0, 3}, p.Counts[0])

	rel, n := p.Dominant(0)
	assert.Equal(t, "sister", rel)
	assert.Equal(t, 3, n)

	rel, n = p.Dominant(1)
	assert.Equal(t, "friend", rel, "ties break alphabetically")
	assert.Equal(t, 2, n)
}

func TestExport(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	row := Row{Relation: "sister", Entity1: "Jane Bennet", Entity2: "Elizabeth Bennet", Entity1ID: "Q2", Entity2ID: "Q1", Mode: "sentence", Source: SourceSequential}
	agg.Add(row)
	edges := agg.Rows()

	t.Run("Counts", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCounts(&buf, edges))
		assert.Equal(t,
			"sorted_pair,Relationship,relationship_type_count,total_relationship_count,unique_relationship_types,Entity1_ID,Entity2_ID,Entity1,Entity2\n"+
				"Q1|Q2,sister,1,1,1,Q1,Q2,Elizabeth Bennet,Jane Bennet\n",
			buf.String())
	})

	t.Run("Pivot", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WritePivot(&buf, BuildPivot(edges)))
		assert.Equal(t, "sorted_pair,sister\nQ1|Q2,1\n", buf.String())
	})

	t.Run("Tables", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		require.NoError(t, WriteTables(dir, Tables{Rows: []Row{row}, Edges: edges, Pivot: BuildPivot(edges)}))

		data, err := os.ReadFile(filepath.Join(dir, ConsolidatedFile))
		require.NoError(t, err)
		assert.Equal(t,
			"Relationship,Entity1,Entity2,Entity1_ID,Entity2_ID,Mode,Source\n"+
				"sister,Jane Bennet,Elizabeth Bennet,Q2,Q1,sentence,sequential\n",
			string(data))
		assert.FileExists(t, filepath.Join(dir, CountsFile))
		assert.FileExists(t, filepath.Join(dir, PivotFile))
	})
}

func TestReadTuples(t *testing.T) {
	t.Parallel()

	tuples, err := ReadTuples(strings.NewReader("Relationship,Entity1,Entity2\nsister,Jane,Lizzy\nfriend,Darcy,Lizzy,manual\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sister", "Jane", "Lizzy"}, {"friend", "Darcy", "Lizzy", "manual"}}, tuples)
}
