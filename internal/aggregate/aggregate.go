package aggregate

import (
	"sort"
	"strings"
	"sync"

	"github.com/Benny93/kin-go/internal/kb"
)

// PairKey is an unordered pair of QIDs, stored sorted.
type PairKey struct {
	A, B string
}

// NewPairKey sorts the two QIDs. It reports false for a self pair.
func NewPairKey(q1, q2 string) (PairKey, bool) {
	if q1 == q2 {
		return PairKey{}, false
	}
	if q2 < q1 {
		q1, q2 = q2, q1
	}
	return PairKey{A: q1, B: q2}, true
}

// String renders the key as "A|B".
func (k PairKey) String() string {
	return k.A + "|" + k.B
}

// ParsePairKey is the inverse of String.
func ParsePairKey(s string) (PairKey, bool) {
	a, b, ok := strings.Cut(s, "|")
	if !ok {
		return PairKey{}, false
	}
	return NewPairKey(a, b)
}

// Less orders keys by A, then B.
func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

// EdgeRow is one (pair, relation) line of the aggregated table.
type EdgeRow struct {
	Pair      PairKey
	Relation  string
	Count     int // occurrences of Relation for the pair
	Total     int // occurrences of any relation for the pair
	Unique    int // distinct relations for the pair
	Entity1ID string
	Entity2ID string
	Entity1   string
	Entity2   string
}

// Aggregator counts resolved rows per unordered pair and relation. It is
// safe for concurrent use; counts do not depend on arrival order.
type Aggregator struct {
	mu     sync.Mutex
	counts map[PairKey]map[string]int
	names  map[string]string
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		counts: make(map[PairKey]map[string]int),
		names:  make(map[string]string),
	}
}

// Add counts one row. Self pairs are ignored and reported as false.
func (a *Aggregator) Add(row Row) bool {
	key, ok := row.Pair()
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addLocked(key, row.Relation, 1)
	a.name(row.Entity1ID, row.Entity1)
	a.name(row.Entity2ID, row.Entity2)
	return true
}

// AddAll counts every row.
func (a *Aggregator) AddAll(rows []Row) {
	for _, r := range rows {
		a.Add(r)
	}
}

// Merge folds the counts of o into a.
func (a *Aggregator) Merge(o *Aggregator) {
	if a == o {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, labels := range o.counts {
		for label, n := range labels {
			a.addLocked(key, label, n)
		}
	}
	for qid, n := range o.names {
		a.name(qid, n)
	}
}

func (a *Aggregator) addLocked(key PairKey, label string, n int) {
	labels := a.counts[key]
	if labels == nil {
		labels = make(map[string]int)
		a.counts[key] = labels
	}
	labels[label] += n
}

// name records the display name for a resolved QID. Unresolved mentions
// share one QID, so their names are not kept.
func (a *Aggregator) name(qid, name string) {
	if qid == kb.Unresolved {
		return
	}
	if _, ok := a.names[qid]; !ok {
		a.names[qid] = name
	}
}

// Name returns the display name for a QID.
func (a *Aggregator) Name(qid string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.names[qid]; ok {
		return n
	}
	return qid
}

// Pairs returns the number of distinct pairs.
func (a *Aggregator) Pairs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.counts)
}

// Rows finalizes the table: one row per (pair, relation), sorted by pair
// key then relation.
func (a *Aggregator) Rows() []EdgeRow {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]PairKey, 0, len(a.counts))
	for k := range a.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var rows []EdgeRow
	for _, k := range keys {
		labels := a.counts[k]
		total := 0
		names := make([]string, 0, len(labels))
		for l, n := range labels {
			total += n
			names = append(names, l)
		}
		sort.Strings(names)
		for _, l := range names {
			rows = append(rows, EdgeRow{
				Pair:      k,
				Relation:  l,
				Count:     labels[l],
				Total:     total,
				Unique:    len(labels),
				Entity1ID: k.A,
				Entity2ID: k.B,
				Entity1:   a.nameLocked(k.A),
				Entity2:   a.nameLocked(k.B),
			})
		}
	}
	return rows
}

func (a *Aggregator) nameLocked(qid string) string {
	if n, ok := a.names[qid]; ok {
		return n
	}
	return qid
}

// Pivot is the pair by relation count matrix.
type Pivot struct {
	Relations []string // sorted
	Pairs     []PairKey
	Counts    [][]int // Counts[pair][relation]
}

// BuildPivot reshapes aggregated rows into a matrix. Pair order follows the
// rows; relation columns are sorted.
func BuildPivot(rows []EdgeRow) Pivot {
	var p Pivot
	relIdx := make(map[string]int)
	pairIdx := make(map[PairKey]int)
	for _, r := range rows {
		if _, ok := relIdx[r.Relation]; !ok {
			relIdx[r.Relation] = 0
			p.Relations = append(p.Relations, r.Relation)
		}
		if _, ok := pairIdx[r.Pair]; !ok {
			pairIdx[r.Pair] = len(p.Pairs)
			p.Pairs = append(p.Pairs, r.Pair)
		}
	}
	sort.Strings(p.Relations)
	for i, rel := range p.Relations {
		relIdx[rel] = i
	}

	p.Counts = make([][]int, len(p.Pairs))
	for i := range p.Counts {
		p.Counts[i] = make([]int, len(p.Relations))
	}
	for _, r := range rows {
		p.Counts[pairIdx[r.Pair]][relIdx[r.Relation]] += r.Count
	}
	return p
}

// Dominant returns the relation with the highest count for pair i. Ties go
// to the alphabetically first relation.
func (p Pivot) Dominant(i int) (string, int) {
	best, bestN := "", 0
	for j, n := range p.Counts[i] {
		if n > bestN {
			best, bestN = p.Relations[j], n
		}
	}
	return best, bestN
}
