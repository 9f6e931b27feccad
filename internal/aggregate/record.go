// Package aggregate turns raw relation tuples into resolved rows and
// per-pair counts.
package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

// Source tags for the extraction strategies.
const (
	SourceSequential = "sequential"
	SourceSyntactic  = "syntactic"
	SourceUnknown    = "unknown"
)

// ErrUnexpectedArity is returned for tuples that are not 3, 4 or 5 fields long.
var ErrUnexpectedArity = errors.New("unexpected record arity")

// Record is one extracted relation tuple before resolution.
type Record struct {
	Relation string
	Entity1  string
	Entity2  string
	Mode     string
	Source   string

	// Chunk is the index of the chunk the tuple came from, or -1.
	Chunk int
}

// Defaults fills the optional Mode and Source fields.
type Defaults struct {
	Mode   string
	Source string
}

// NewRecord builds a Record from a tuple:
//
//	relation, entity1, entity2
//	relation, entity1, entity2, source
//	relation, entity1, entity2, mode, source
//
// Missing or blank optional fields take the defaults; a blank default source
// becomes SourceUnknown.
func NewRecord(fields []string, d Defaults) (Record, error) {
	rec := Record{Mode: d.Mode, Source: d.Source, Chunk: -1}
	switch len(fields) {
	case 5:
		rec.Mode, rec.Source = pick(fields[3], d.Mode), pick(fields[4], d.Source)
	case 4:
		rec.Source = pick(fields[3], d.Source)
	case 3:
	default:
		return Record{}, fmt.Errorf("%w: %d fields", ErrUnexpectedArity, len(fields))
	}
	rec.Relation, rec.Entity1, rec.Entity2 = fields[0], fields[1], fields[2]
	if rec.Source == "" {
		rec.Source = SourceUnknown
	}
	return rec, nil
}

func pick(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
