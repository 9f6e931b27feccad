package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/Benny93/kin-go/internal/graph"
)

// MemoryBackend is an in-memory implementation of StorageBackend for tests
// and one-shot runs.
type MemoryBackend struct {
	mu       sync.RWMutex
	graph    *graph.Graph
	mentions map[string][]byte
	indexed  bool
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		graph:    graph.New(),
		mentions: make(map[string][]byte),
	}
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = true
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graph = graph.New()
	m.mentions = make(map[string][]byte)
	return nil
}

// BulkLoad implements StorageBackend.
func (m *MemoryBackend) BulkLoad(ctx context.Context, g *graph.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := graph.New()
	for _, node := range g.Nodes() {
		fresh.AddNode(node)
	}
	for _, rel := range g.Relationships() {
		fresh.AddRelationship(rel)
	}
	m.graph = fresh
	m.indexed = true
	return nil
}

// GetNode implements StorageBackend.
func (m *MemoryBackend) GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.GetNode(nodeID), nil
}

// GetNodesByLabel implements StorageBackend.
func (m *MemoryBackend) GetNodesByLabel(ctx context.Context, label graph.NodeLabel) []*graph.GraphNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.GetNodesByLabel(label)
}

// GetNeighbors implements StorageBackend.
func (m *MemoryBackend) GetNeighbors(ctx context.Context, nodeID string) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Neighbor
	for _, rel := range m.graph.Edges(nodeID) {
		if n := m.graph.GetNode(otherEnd(rel, nodeID)); n != nil {
			out = append(out, Neighbor{Node: n, Edge: rel})
		}
	}
	sortNeighbors(out)
	return out, nil
}

// TopPairs implements StorageBackend.
func (m *MemoryBackend) TopPairs(ctx context.Context, limit int) ([]*graph.GraphRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rels := m.graph.GetRelationshipsByType(graph.RelRelated)
	sortByWeight(rels)
	if limit > 0 && len(rels) > limit {
		rels = rels[:limit]
	}
	return rels, nil
}

// FTSSearch implements StorageBackend.
func (m *MemoryBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queryTokens := tokenize(query)
	var results []SearchResult
	for _, node := range m.graph.GetNodesByLabel(graph.NodeCharacter) {
		score := 0.0
		for token, freq := range nodeTokens(node) {
			for _, qt := range queryTokens {
				score += tokenScore(qt, token, freq)
			}
		}
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			NodeID:   node.ID,
			Score:    score,
			NodeName: node.Name,
			QID:      node.QID,
			Label:    string(node.Label),
			Snippet:  strings.Join(node.Aliases, ", "),
		})
	}
	return limitResults(results, limit), nil
}

// StoreMentions implements StorageBackend.
func (m *MemoryBackend) StoreMentions(ctx context.Context, mentions *graph.Mentions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, qid := range mentions.QIDs() {
		data, err := mentions.Bitmap(qid)
		if err != nil {
			return err
		}
		m.mentions[qid] = data
	}
	return nil
}

// GetMentions implements StorageBackend.
func (m *MemoryBackend) GetMentions(ctx context.Context, qid string) ([]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.mentions[qid]
	if !ok {
		return nil, nil
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return bm.ToArray(), nil
}

// IsIndexed returns true if the backend has been initialized or loaded.
func (m *MemoryBackend) IsIndexed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed
}

// NodeCount implements StorageBackend.
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.NodeCount()
}

// RelationshipCount implements StorageBackend.
func (m *MemoryBackend) RelationshipCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.RelationshipCount()
}
