package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/kin-go/internal/graph"
)

// Key prefixes for different data types
const (
	prefixNode     = "n:"     // node data
	prefixRel      = "r:"     // relationship data
	prefixIncoming = "i:in:"  // incoming relationships
	prefixOutgoing = "i:out:" // outgoing relationships
	prefixMention  = "m:"     // roaring bitmap of chunk indices per QID
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db                *badger.DB
	fts               *FTSIndex
	initialized       bool
	mu                sync.RWMutex
	nodeCount         int
	relationshipCount int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.fts = NewFTSIndex(b.db)
	b.initialized = true
	b.recount()
	return nil
}

// recount refreshes the node and relationship counters from the database.
func (b *BadgerBackend) recount() {
	b.nodeCount = b.countPrefix(prefixNode)
	b.relationshipCount = b.countPrefix(prefixRel)
}

func (b *BadgerBackend) countPrefix(prefix string) int {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.fts = nil
	b.initialized = false
	return err
}

// BulkLoad replaces the entire store with the contents of the graph.
func (b *BadgerBackend) BulkLoad(ctx context.Context, g *graph.Graph) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	b.nodeCount = 0
	b.relationshipCount = 0

	for _, node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("marshaling node: %w", err)
		}
		if err := wb.Set(b.nodeKey(node.ID), data); err != nil {
			return fmt.Errorf("setting node: %w", err)
		}
		b.nodeCount++
	}

	for _, rel := range g.Relationships() {
		data, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("marshaling relationship: %w", err)
		}
		if err := wb.Set(b.relKey(rel.ID), data); err != nil {
			return fmt.Errorf("setting relationship: %w", err)
		}
		b.relationshipCount++

		if err := b.indexRelationshipWB(wb, rel); err != nil {
			return err
		}
	}

	if err := wb.Flush(); err != nil {
		return err
	}

	for _, node := range g.GetNodesByLabel(graph.NodeCharacter) {
		if err := b.fts.IndexNode(node); err != nil {
			return fmt.Errorf("indexing %s: %w", node.ID, err)
		}
	}
	return nil
}

// indexRelationshipWB creates adjacency list indexes for a relationship in a write batch.
func (b *BadgerBackend) indexRelationshipWB(wb *badger.WriteBatch, rel *graph.GraphRelationship) error {
	outKey := fmt.Sprintf("%s%s:%s:%s", prefixOutgoing, rel.Source, rel.Type, rel.ID)
	if err := wb.Set([]byte(outKey), []byte(rel.ID)); err != nil {
		return fmt.Errorf("setting outgoing index: %w", err)
	}

	inKey := fmt.Sprintf("%s%s:%s:%s", prefixIncoming, rel.Target, rel.Type, rel.ID)
	if err := wb.Set([]byte(inKey), []byte(rel.ID)); err != nil {
		return fmt.Errorf("setting incoming index: %w", err)
	}

	return nil
}

// GetNode returns a single node by ID, or nil if not found.
func (b *BadgerBackend) GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()
	return b.getNode(txn, nodeID)
}

// getNode reads a node inside txn. Missing nodes return nil without error.
func (b *BadgerBackend) getNode(txn *badger.Txn, nodeID string) (*graph.GraphNode, error) {
	item, err := txn.Get(b.nodeKey(nodeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	var node graph.GraphNode
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling node: %w", err)
	}
	return &node, nil
}

func (b *BadgerBackend) getRelationship(txn *badger.Txn, relID string) (*graph.GraphRelationship, error) {
	item, err := txn.Get(b.relKey(relID))
	if err != nil {
		return nil, err
	}
	var rel graph.GraphRelationship
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rel)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling relationship: %w", err)
	}
	return &rel, nil
}

// GetNodesByLabel returns all nodes with the given label.
func (b *BadgerBackend) GetNodesByLabel(ctx context.Context, label graph.NodeLabel) []*graph.GraphNode {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var nodes []*graph.GraphNode

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixNode)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var node graph.GraphNode
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		}); err != nil {
			continue
		}
		if node.Label == label {
			nodes = append(nodes, &node)
		}
	}
	return nodes
}

// GetNeighbors returns characters linked to nodeID by related edges in
// either direction.
func (b *BadgerBackend) GetNeighbors(ctx context.Context, nodeID string) ([]Neighbor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	var out []Neighbor
	for _, prefix := range []string{prefixOutgoing, prefixIncoming} {
		ids, err := b.adjacentRelIDs(txn, fmt.Sprintf("%s%s:%s:", prefix, nodeID, graph.RelRelated))
		if err != nil {
			return nil, err
		}
		for _, relID := range ids {
			rel, err := b.getRelationship(txn, relID)
			if err != nil {
				continue
			}
			node, err := b.getNode(txn, otherEnd(rel, nodeID))
			if err != nil || node == nil {
				continue
			}
			out = append(out, Neighbor{Node: node, Edge: rel})
		}
	}
	sortNeighbors(out)
	return out, nil
}

func (b *BadgerBackend) adjacentRelIDs(txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return nil, fmt.Errorf("reading rel ID: %w", err)
		}
	}
	return ids, nil
}

// TopPairs returns the heaviest related edges.
func (b *BadgerBackend) TopPairs(ctx context.Context, limit int) ([]*graph.GraphRelationship, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixRel)
	it := txn.NewIterator(opts)
	defer it.Close()

	var rels []*graph.GraphRelationship
	for it.Rewind(); it.Valid(); it.Next() {
		var rel graph.GraphRelationship
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rel)
		}); err != nil {
			return nil, fmt.Errorf("unmarshaling relationship: %w", err)
		}
		if rel.Type == graph.RelRelated {
			rels = append(rels, &rel)
		}
	}

	sortByWeight(rels)
	if limit > 0 && len(rels) > limit {
		rels = rels[:limit]
	}
	return rels, nil
}

// FTSSearch searches the persisted name index.
func (b *BadgerBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.fts == nil {
		return []SearchResult{}, nil
	}
	return b.fts.Search(query, limit)
}

// StoreMentions persists one roaring bitmap per QID.
func (b *BadgerBackend) StoreMentions(ctx context.Context, m *graph.Mentions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, qid := range m.QIDs() {
		data, err := m.Bitmap(qid)
		if err != nil {
			return fmt.Errorf("encoding mentions of %s: %w", qid, err)
		}
		if err := wb.Set([]byte(prefixMention+qid), data); err != nil {
			return fmt.Errorf("setting mentions: %w", err)
		}
	}
	return wb.Flush()
}

// GetMentions returns the chunk indices mentioning qid, or nil.
func (b *BadgerBackend) GetMentions(ctx context.Context, qid string) ([]uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get([]byte(prefixMention + qid))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mentions: %w", err)
	}

	bm := roaring.New()
	if err := item.Value(func(val []byte) error {
		return bm.UnmarshalBinary(val)
	}); err != nil {
		return nil, fmt.Errorf("decoding mentions: %w", err)
	}
	return bm.ToArray(), nil
}

// nodeKey returns the BadgerDB key for a node.
func (b *BadgerBackend) nodeKey(nodeID string) []byte {
	return []byte(prefixNode + nodeID)
}

// relKey returns the BadgerDB key for a relationship.
func (b *BadgerBackend) relKey(relID string) []byte {
	return []byte(prefixRel + relID)
}

// NodeCount returns the node count.
func (b *BadgerBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeCount
}

// RelationshipCount returns the relationship count.
func (b *BadgerBackend) RelationshipCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.relationshipCount
}
