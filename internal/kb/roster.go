package kb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/Benny93/kin-go/internal/logger"
)

// ErrRosterNotFound is returned when the roster file does not exist.
var ErrRosterNotFound = errors.New("roster not found")

// Character is one roster entry.
type Character struct {
	QID     string   `json:"qid"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// Names returns the canonical name followed by the aliases.
func (c Character) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// LoadStats summarizes a roster load.
type LoadStats struct {
	Rows    int // data rows seen, header and empty lines excluded
	Loaded  int
	Skipped int // malformed, blank or duplicate rows
}

var aliasSep = regexp.MustCompile(`[;,\t]`)

// LoadRoster reads a roster CSV file.
func LoadRoster(path string) ([]Character, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, LoadStats{}, fmt.Errorf("%w: %s", ErrRosterNotFound, path)
		}
		return nil, LoadStats{}, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	chars, stats, err := ParseRoster(f)
	if err != nil {
		return nil, stats, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if stats.Skipped > 0 {
		logger.Warn("skipped malformed roster rows", "path", path, "count", stats.Skipped)
	}
	logger.Debug("loaded roster", "path", path, "characters", stats.Loaded)
	return chars, stats, nil
}

// ParseRoster reads roster rows: QID, canonical name, aliases. The first
// non-blank row is a header. Alias cells are split on semicolons, commas and
// tabs; unquoted cells past the third are treated as further aliases.
func ParseRoster(r io.Reader) ([]Character, LoadStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		chars  []Character
		stats  LoadStats
		header bool
		seen   = make(map[string]bool)
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, err
		}
		if !header {
			header = !blankRow(row)
			continue
		}
		stats.Rows++
		if blankRow(row) {
			stats.Skipped++
			continue
		}

		if len(row) < 2 {
			stats.Skipped++
			continue
		}
		qid, name := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if qid == "" || name == "" || seen[qid] {
			stats.Skipped++
			continue
		}
		seen[qid] = true

		chars = append(chars, Character{
			QID:     qid,
			Name:    name,
			Aliases: splitAliases(row[2:]),
		})
		stats.Loaded++
	}
	return chars, stats, nil
}

func splitAliases(cells []string) []string {
	var out []string
	for _, cell := range cells {
		cell = strings.NewReplacer(`"`, "", "'", "").Replace(cell)
		for _, a := range aliasSep.Split(cell, -1) {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
