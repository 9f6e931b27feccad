package graph

import (
	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/kb"
)

// Display scaling bounds.
const (
	MinNodeSize  = 40.0
	MaxNodeSize  = 120.0
	MinEdgeWidth = 0.8
	MaxEdgeWidth = 5.0
)

// Roster supplies canonical names and aliases for QIDs.
type Roster interface {
	Lookup(qid string) (kb.Character, bool)
}

// BuildOptions tune Build.
type BuildOptions struct {
	// Frequency overrides mention counts per QID. Missing QIDs fall back to
	// Mentions, then to 1.
	Frequency map[string]int

	// Mentions provides chunk-level mention sets.
	Mentions *Mentions
}

// Build creates one node per character appearing in the pivot and one
// related edge per pair, labelled with the pair's dominant relation and
// weighted by its count.
func Build(p aggregate.Pivot, roster Roster, opts BuildOptions) *Graph {
	g := New()

	var order []string
	seen := make(map[string]bool)
	for _, pair := range p.Pairs {
		for _, qid := range []string{pair.A, pair.B} {
			if !seen[qid] {
				seen[qid] = true
				order = append(order, qid)
			}
		}
	}

	freq := make(map[string]int, len(order))
	maxFreq := 0
	for _, qid := range order {
		n := frequency(qid, opts)
		freq[qid] = n
		if n > maxFreq {
			maxFreq = n
		}
	}

	for _, qid := range order {
		node := &GraphNode{
			ID:         GenerateID(NodeCharacter, qid),
			Label:      NodeCharacter,
			Name:       qid,
			QID:        qid,
			Mentions:   freq[qid],
			Size:       scale(float64(freq[qid]), float64(maxFreq), MinNodeSize, MaxNodeSize),
			Unresolved: qid == kb.Unresolved,
			Community:  -1,
		}
		if roster != nil {
			if c, ok := roster.Lookup(qid); ok {
				node.Name = c.Name
				node.Aliases = c.Aliases
			}
		}
		g.AddNode(node)
	}

	maxWeight := 0
	weights := make([]int, len(p.Pairs))
	relations := make([]string, len(p.Pairs))
	for i := range p.Pairs {
		relations[i], weights[i] = p.Dominant(i)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}

	for i, pair := range p.Pairs {
		counts := make(map[string]int)
		for j, n := range p.Counts[i] {
			if n > 0 {
				counts[p.Relations[j]] = n
			}
		}
		rel := &GraphRelationship{
			ID:       EdgeID(pair.A, pair.B),
			Type:     RelRelated,
			Source:   GenerateID(NodeCharacter, pair.A),
			Target:   GenerateID(NodeCharacter, pair.B),
			Relation: relations[i],
			Weight:   weights[i],
			Width:    scale(float64(weights[i]), float64(maxWeight), MinEdgeWidth, MaxEdgeWidth),
			Counts:   counts,
		}
		if opts.Mentions != nil {
			rel.Properties = map[string]any{"co_mentions": opts.Mentions.CoMentioned(pair.A, pair.B)}
		}
		g.AddRelationship(rel)
	}
	return g
}

func frequency(qid string, opts BuildOptions) int {
	if n, ok := opts.Frequency[qid]; ok && n > 0 {
		return n
	}
	if opts.Mentions != nil {
		if n := opts.Mentions.Count(qid); n > 0 {
			return n
		}
	}
	return 1
}

// scale maps v in [0, limit] linearly onto [lo, hi]; lo when limit is zero.
func scale(v, limit, lo, hi float64) float64 {
	if limit <= 0 {
		return lo
	}
	return lo + v/limit*(hi-lo)
}
