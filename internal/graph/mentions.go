package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Mentions records, per QID, the set of chunk indices mentioning it.
type Mentions struct {
	mu   sync.Mutex
	sets map[string]*roaring.Bitmap
}

// NewMentions creates an empty index.
func NewMentions() *Mentions {
	return &Mentions{sets: make(map[string]*roaring.Bitmap)}
}

// Add marks qid as mentioned in chunk.
func (m *Mentions) Add(qid string, chunk uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.sets[qid]
	if !ok {
		bm = roaring.New()
		m.sets[qid] = bm
	}
	bm.Add(chunk)
}

// Count returns the number of chunks mentioning qid.
func (m *Mentions) Count(qid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bm, ok := m.sets[qid]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

// Counts returns Count for every QID.
func (m *Mentions) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.sets))
	for qid, bm := range m.sets {
		out[qid] = int(bm.GetCardinality())
	}
	return out
}

// Chunks returns the chunk indices mentioning qid in ascending order.
func (m *Mentions) Chunks(qid string) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bm, ok := m.sets[qid]; ok {
		return bm.ToArray()
	}
	return nil
}

// CoMentioned returns the number of chunks mentioning both QIDs.
func (m *Mentions) CoMentioned(a, b string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, okA := m.sets[a]
	y, okB := m.sets[b]
	if !okA || !okB {
		return 0
	}
	return int(x.AndCardinality(y))
}

// QIDs returns every QID with at least one mention, sorted.
func (m *Mentions) QIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets))
	for qid := range m.sets {
		out = append(out, qid)
	}
	sort.Strings(out)
	return out
}

// Bitmap returns the serialized chunk set of qid.
func (m *Mentions) Bitmap(qid string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.sets[qid]
	if !ok {
		return nil, nil
	}
	return bm.ToBytes()
}

// SetBitmap replaces the chunk set of qid with a serialized bitmap.
func (m *Mentions) SetBitmap(qid string, data []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("unmarshal mentions of %s: %w", qid, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[qid] = bm
	return nil
}
