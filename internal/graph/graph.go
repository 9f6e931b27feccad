package graph

import (
	"sort"
	"sync"
)

// Graph is an in-memory graph of characters and communities.
//
// Nodes and relationships are keyed by ID. Removing a node cascades to
// every relationship that references it. Lookups by label, type and
// adjacency go through secondary indexes.
type Graph struct {
	mu            sync.RWMutex
	nodes         map[string]*GraphNode
	relationships map[string]*GraphRelationship

	byLabel   map[NodeLabel]map[string]*GraphNode
	byRelType map[RelType]map[string]*GraphRelationship
	outgoing  map[string]map[string]*GraphRelationship
	incoming  map[string]map[string]*GraphRelationship
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:         make(map[string]*GraphNode),
		relationships: make(map[string]*GraphRelationship),
		byLabel:       make(map[NodeLabel]map[string]*GraphNode),
		byRelType:     make(map[RelType]map[string]*GraphRelationship),
		outgoing:      make(map[string]map[string]*GraphRelationship),
		incoming:      make(map[string]map[string]*GraphRelationship),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// RelationshipCount returns the number of relationships.
func (g *Graph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relationships)
}

// CountNodesByLabel returns the count of nodes with the given label.
func (g *Graph) CountNodesByLabel(label NodeLabel) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byLabel[label])
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*GraphNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relationships returns all relationships sorted by ID.
func (g *Graph) Relationships() []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*GraphRelationship, 0, len(g.relationships))
	for _, r := range g.relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddNode adds a node, replacing any node with the same ID.
func (g *Graph) AddNode(node *GraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.nodes[node.ID]; ok && old.Label != node.Label {
		delete(g.byLabel[old.Label], node.ID)
	}
	g.nodes[node.ID] = node
	if g.byLabel[node.Label] == nil {
		g.byLabel[node.Label] = make(map[string]*GraphNode)
	}
	g.byLabel[node.Label][node.ID] = node
}

// GetNode returns the node with the given ID, or nil.
func (g *Graph) GetNode(nodeID string) *GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[nodeID]
}

// RemoveNode removes a node and every relationship referencing it.
func (g *Graph) RemoveNode(nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[nodeID]
	if !ok {
		return false
	}
	delete(g.nodes, nodeID)
	delete(g.byLabel[node.Label], nodeID)
	g.cascadeRelationshipsForNode(nodeID)
	return true
}

// RemoveNodesByLabel removes every node with the label, cascading to their
// relationships. It returns the number of nodes removed.
func (g *Graph) RemoveNodesByLabel(label NodeLabel) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.byLabel[label]))
	for id := range g.byLabel[label] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		delete(g.nodes, id)
		g.cascadeRelationshipsForNode(id)
	}
	delete(g.byLabel, label)
	return len(ids)
}

// AddRelationship adds a relationship, replacing any with the same ID.
func (g *Graph) AddRelationship(rel *GraphRelationship) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.relationships[rel.ID]; ok {
		delete(g.byRelType[old.Type], rel.ID)
		delete(g.outgoing[old.Source], rel.ID)
		delete(g.incoming[old.Target], rel.ID)
	}
	g.relationships[rel.ID] = rel

	if g.byRelType[rel.Type] == nil {
		g.byRelType[rel.Type] = make(map[string]*GraphRelationship)
	}
	g.byRelType[rel.Type][rel.ID] = rel
	if g.outgoing[rel.Source] == nil {
		g.outgoing[rel.Source] = make(map[string]*GraphRelationship)
	}
	g.outgoing[rel.Source][rel.ID] = rel
	if g.incoming[rel.Target] == nil {
		g.incoming[rel.Target] = make(map[string]*GraphRelationship)
	}
	g.incoming[rel.Target][rel.ID] = rel
}

// GetRelationship returns the relationship with the given ID, or nil.
func (g *Graph) GetRelationship(id string) *GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.relationships[id]
}

// GetNodesByLabel returns all nodes with the given label, sorted by ID.
func (g *Graph) GetNodesByLabel(label NodeLabel) []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*GraphNode, 0, len(g.byLabel[label]))
	for _, node := range g.byLabel[label] {
		result = append(result, node)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetRelationshipsByType returns all relationships of the given type,
// sorted by ID.
func (g *Graph) GetRelationshipsByType(relType RelType) []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*GraphRelationship, 0, len(g.byRelType[relType]))
	for _, rel := range g.byRelType[relType] {
		result = append(result, rel)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetOutgoing returns relationships originating from the node, optionally
// limited to one type.
func (g *Graph) GetOutgoing(nodeID string, relType ...RelType) []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterType(g.outgoing[nodeID], relType)
}

// GetIncoming returns relationships targeting the node, optionally limited
// to one type.
func (g *Graph) GetIncoming(nodeID string, relType ...RelType) []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterType(g.incoming[nodeID], relType)
}

// Edges returns the related edges touching a node in either direction,
// sorted by ID.
func (g *Graph) Edges(nodeID string) []*GraphRelationship {
	out := append(g.GetOutgoing(nodeID, RelRelated), g.GetIncoming(nodeID, RelRelated)...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Neighbors returns the characters sharing a related edge with the node.
func (g *Graph) Neighbors(nodeID string) []*GraphNode {
	var out []*GraphNode
	for _, e := range g.Edges(nodeID) {
		other := e.Target
		if other == nodeID {
			other = e.Source
		}
		if n := g.GetNode(other); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func filterType(rels map[string]*GraphRelationship, relType []RelType) []*GraphRelationship {
	result := make([]*GraphRelationship, 0, len(rels))
	for _, rel := range rels {
		if len(relType) > 0 && relType[0] != "" && rel.Type != relType[0] {
			continue
		}
		result = append(result, rel)
	}
	return result
}

// Stats returns a summary of graph size.
func (g *Graph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"nodes":         len(g.nodes),
		"relationships": len(g.relationships),
		"characters":    len(g.byLabel[NodeCharacter]),
		"communities":   len(g.byLabel[NodeCommunity]),
	}
}

// cascadeRelationshipsForNode removes all relationships where the node is
// source or target. Must be called with the write lock held.
func (g *Graph) cascadeRelationshipsForNode(nodeID string) {
	for _, rel := range g.outgoing[nodeID] {
		delete(g.relationships, rel.ID)
		delete(g.byRelType[rel.Type], rel.ID)
		delete(g.incoming[rel.Target], rel.ID)
	}
	delete(g.outgoing, nodeID)

	for _, rel := range g.incoming[nodeID] {
		delete(g.relationships, rel.ID)
		delete(g.byRelType[rel.Type], rel.ID)
		delete(g.outgoing[rel.Source], rel.ID)
	}
	delete(g.incoming, nodeID)
}
