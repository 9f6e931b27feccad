package aggregate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Column headers of the exported tables.
var (
	ConsolidatedHeader = []string{"Relationship", "Entity1", "Entity2", "Entity1_ID", "Entity2_ID", "Mode", "Source"}
	CountsHeader       = []string{
		"sorted_pair", "Relationship", "relationship_type_count", "total_relationship_count",
		"unique_relationship_types", "Entity1_ID", "Entity2_ID", "Entity1", "Entity2",
	}
)

// WriteConsolidated writes resolved rows.
func WriteConsolidated(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ConsolidatedHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Relation, r.Entity1, r.Entity2, r.Entity1ID, r.Entity2ID, r.Mode, r.Source}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCounts writes the aggregated table.
func WriteCounts(w io.Writer, rows []EdgeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CountsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Pair.String(), r.Relation,
			strconv.Itoa(r.Count), strconv.Itoa(r.Total), strconv.Itoa(r.Unique),
			r.Entity1ID, r.Entity2ID, r.Entity1, r.Entity2,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePivot writes the pair by relation matrix.
func WritePivot(w io.Writer, p Pivot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"sorted_pair"}, p.Relations...)); err != nil {
		return err
	}
	for i, key := range p.Pairs {
		rec := make([]string, 0, len(p.Relations)+1)
		rec = append(rec, key.String())
		for _, n := range p.Counts[i] {
			rec = append(rec, strconv.Itoa(n))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTuples reads raw relation tuples, one per CSV line, of any width.
// A first line starting with "Relationship" is treated as a header.
func ReadTuples(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var tuples [][]string
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tuples: %w", err)
		}
		if first && len(rec) > 0 && rec[0] == "Relationship" {
			continue
		}
		tuples = append(tuples, rec)
	}
	return tuples, nil
}

// Tables bundles everything a run exports.
type Tables struct {
	Rows  []Row
	Edges []EdgeRow
	Pivot Pivot
}

// Output file names under the output directory.
const (
	ConsolidatedFile = "consolidated_relationships.csv"
	CountsFile       = "relationships_with_counts.csv"
	PivotFile        = "relationship_pivot_summary.csv"
)

// WriteTables writes the three CSV tables into dir.
func WriteTables(dir string, t Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ConsolidatedFile, func(w io.Writer) error { return WriteConsolidated(w, t.Rows) }},
		{CountsFile, func(w io.Writer) error { return WriteCounts(w, t.Edges) }},
		{PivotFile, func(w io.Writer) error { return WritePivot(w, t.Pivot) }},
	}
	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), wr.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
