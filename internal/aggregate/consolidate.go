package aggregate

import (
	"errors"

	"github.com/Benny93/kin-go/internal/kb"
	"github.com/Benny93/kin-go/internal/logger"
)

// Resolver maps a mention to a canonical identity.
type Resolver interface {
	Resolve(mention string) kb.Resolution
}

// Row is a record that survived filtering, with both mentions resolved.
type Row struct {
	Relation  string
	Entity1   string
	Entity2   string
	Entity1ID string
	Entity2ID string
	Mode      string
	Source    string
	Chunk     int
}

// Pair returns the row's unordered pair key.
func (r Row) Pair() (PairKey, bool) {
	return NewPairKey(r.Entity1ID, r.Entity2ID)
}

// DropReason says why a record did not become a Row.
type DropReason int

const (
	Kept DropReason = iota
	DropRelation
	DropPronoun
	DropSelfPair
)

func (d DropReason) String() string {
	switch d {
	case Kept:
		return "kept"
	case DropRelation:
		return "relation"
	case DropPronoun:
		return "pronoun"
	case DropSelfPair:
		return "self-pair"
	}
	return "unknown"
}

// Stats counts consolidation outcomes.
type Stats struct {
	Kept     int
	Relation int
	Pronoun  int
	SelfPair int
	BadArity int
}

func (s *Stats) add(d DropReason) {
	switch d {
	case Kept:
		s.Kept++
	case DropRelation:
		s.Relation++
	case DropPronoun:
		s.Pronoun++
	case DropSelfPair:
		s.SelfPair++
	}
}

// Merge adds o into s.
func (s *Stats) Merge(o Stats) {
	s.Kept += o.Kept
	s.Relation += o.Relation
	s.Pronoun += o.Pronoun
	s.SelfPair += o.SelfPair
	s.BadArity += o.BadArity
}

// ConsolidateRecord filters, canonicalizes and resolves one record.
func ConsolidateRecord(rec Record, r Resolver) (Row, DropReason) {
	label := Canonical(rec.Relation)
	if !relationSet[label] {
		return Row{}, DropRelation
	}
	if IsPronoun(rec.Entity1) || IsPronoun(rec.Entity2) {
		return Row{}, DropPronoun
	}

	r1, r2 := r.Resolve(rec.Entity1), r.Resolve(rec.Entity2)
	if r1.QID == r2.QID {
		return Row{}, DropSelfPair
	}
	return Row{
		Relation:  label,
		Entity1:   r1.Name,
		Entity2:   r2.Name,
		Entity1ID: r1.QID,
		Entity2ID: r2.QID,
		Mode:      rec.Mode,
		Source:    rec.Source,
		Chunk:     rec.Chunk,
	}, Kept
}

// Consolidate runs ConsolidateRecord over records, keeping input order.
func Consolidate(records []Record, r Resolver) ([]Row, Stats) {
	var (
		rows  []Row
		stats Stats
	)
	for _, rec := range records {
		row, reason := ConsolidateRecord(rec, r)
		stats.add(reason)
		if reason == Kept {
			rows = append(rows, row)
		}
	}
	return rows, stats
}

// ConsolidateTuples builds records from raw tuples and consolidates them.
// Tuples of unexpected arity are logged and skipped.
func ConsolidateTuples(tuples [][]string, d Defaults, r Resolver) ([]Row, Stats) {
	records := make([]Record, 0, len(tuples))
	bad := 0
	for i, t := range tuples {
		rec, err := NewRecord(t, d)
		if errors.Is(err, ErrUnexpectedArity) {
			logger.Warn("skipping relation tuple", "index", i, "fields", len(t), "err", err)
			bad++
			continue
		}
		records = append(records, rec)
	}
	rows, stats := Consolidate(records, r)
	stats.BadArity = bad
	return rows, stats
}
