package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteGML writes the character nodes and related edges in GML.
func WriteGML(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	nodes := g.GetNodesByLabel(NodeCharacter)
	index := make(map[string]int, len(nodes))

	fmt.Fprintln(bw, "graph [")
	fmt.Fprintln(bw, "  directed 0")
	for i, n := range nodes {
		index[n.ID] = i
		fmt.Fprintln(bw, "  node [")
		fmt.Fprintf(bw, "    id %d\n", i)
		fmt.Fprintf(bw, "    name %s\n", gmlString(n.QID))
		fmt.Fprintf(bw, "    label %s\n", gmlString(n.Name))
		fmt.Fprintf(bw, "    mentions %d\n", n.Mentions)
		fmt.Fprintf(bw, "    size %s\n", gmlFloat(n.Size))
		if n.Community >= 0 {
			fmt.Fprintf(bw, "    community %d\n", n.Community)
		}
		fmt.Fprintln(bw, "  ]")
	}
	for _, e := range g.GetRelationshipsByType(RelRelated) {
		src, okS := index[e.Source]
		dst, okT := index[e.Target]
		if !okS || !okT {
			continue
		}
		fmt.Fprintln(bw, "  edge [")
		fmt.Fprintf(bw, "    source %d\n", src)
		fmt.Fprintf(bw, "    target %d\n", dst)
		fmt.Fprintf(bw, "    relationship %s\n", gmlString(e.Relation))
		fmt.Fprintf(bw, "    weight %d\n", e.Weight)
		fmt.Fprintf(bw, "    width %s\n", gmlFloat(e.Width))
		fmt.Fprintln(bw, "  ]")
	}
	fmt.Fprintln(bw, "]")
	return bw.Flush()
}

// gmlString quotes s for GML, which has no escape sequences: quotes and
// ampersands become HTML entities.
func gmlString(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return `"` + s + `"`
}

func gmlFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Snapshot is the JSON form of a graph.
type Snapshot struct {
	Nodes         []*GraphNode         `json:"nodes"`
	Relationships []*GraphRelationship `json:"relationships"`
}

// WriteJSON writes every node and relationship as an indented Snapshot.
func WriteJSON(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Snapshot{Nodes: g.Nodes(), Relationships: g.Relationships()})
}

// ReadJSON rebuilds a graph written by WriteJSON.
func ReadJSON(r io.Reader) (*Graph, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	g := New()
	for _, n := range snap.Nodes {
		g.AddNode(n)
	}
	for _, r := range snap.Relationships {
		g.AddRelationship(r)
	}
	return g, nil
}
