// Package storage persists the character graph for querying.
//
// It defines the StorageBackend interface that every implementation must
// satisfy, along with the result types shared across backends.
package storage

import (
	"context"
	"sort"

	"github.com/Benny93/kin-go/internal/graph"
)

// SearchResult represents a character matched by a name search.
type SearchResult struct {
	// NodeID is the ID of the matching node.
	NodeID string

	// Score is the relevance score (higher is better).
	Score float64

	// NodeName is the canonical name of the character.
	NodeName string

	// QID is the roster identifier.
	QID string

	// Label is the node label.
	Label string

	// Snippet lists the aliases, comma separated.
	Snippet string
}

// Neighbor is a character related to another one, with the edge between
// them.
type Neighbor struct {
	Node *graph.GraphNode
	Edge *graph.GraphRelationship
}

// StorageBackend defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Initialize opens or creates the storage backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// BulkLoad replaces the entire store with the contents of the graph.
	BulkLoad(ctx context.Context, g *graph.Graph) error

	// GetNode returns a single node by ID, or nil if not found.
	GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error)

	// GetNodesByLabel returns all nodes with the given label.
	GetNodesByLabel(ctx context.Context, label graph.NodeLabel) []*graph.GraphNode

	// GetNeighbors returns the characters sharing a related edge with the
	// node, heaviest edge first.
	GetNeighbors(ctx context.Context, nodeID string) ([]Neighbor, error)

	// TopPairs returns the heaviest related edges. A non-positive limit
	// returns all of them.
	TopPairs(ctx context.Context, limit int) ([]*graph.GraphRelationship, error)

	// FTSSearch searches character names, aliases and QIDs.
	FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// StoreMentions persists the chunk mention sets.
	StoreMentions(ctx context.Context, m *graph.Mentions) error

	// GetMentions returns the chunks a character is mentioned in.
	GetMentions(ctx context.Context, qid string) ([]uint32, error)

	// NodeCount returns the number of stored nodes.
	NodeCount() int

	// RelationshipCount returns the number of stored relationships.
	RelationshipCount() int
}

// sortByWeight orders edges heaviest first, then by ID.
func sortByWeight(rels []*graph.GraphRelationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Weight != rels[j].Weight {
			return rels[i].Weight > rels[j].Weight
		}
		return rels[i].ID < rels[j].ID
	})
}

// sortNeighbors orders neighbors by edge weight, heaviest first.
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Edge.Weight != ns[j].Edge.Weight {
			return ns[i].Edge.Weight > ns[j].Edge.Weight
		}
		return ns[i].Node.ID < ns[j].Node.ID
	})
}

func otherEnd(rel *graph.GraphRelationship, nodeID string) string {
	if rel.Source == nodeID {
		return rel.Target
	}
	return rel.Source
}

func limitResults(results []SearchResult, limit int) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
