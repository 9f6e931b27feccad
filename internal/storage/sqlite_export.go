package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/graph"
)

// SQLiteExport is the content written by WriteSQLite.
type SQLiteExport struct {
	Graph    *graph.Graph
	Rows     []aggregate.Row
	Edges    []aggregate.EdgeRow
	Mentions *graph.Mentions
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS characters (
	qid TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	aliases JSON,
	mentions INTEGER NOT NULL,
	size REAL NOT NULL,
	community INTEGER,
	unresolved INTEGER NOT NULL DEFAULT 0,
	mention_chunks BLOB
);

CREATE TABLE IF NOT EXISTS edges (
	entity1_id TEXT NOT NULL,
	entity2_id TEXT NOT NULL,
	relationship TEXT NOT NULL,
	weight INTEGER NOT NULL,
	width REAL NOT NULL,
	counts JSON,
	PRIMARY KEY (entity1_id, entity2_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS relationship_counts (
	sorted_pair TEXT NOT NULL,
	relationship TEXT NOT NULL,
	relationship_type_count INTEGER NOT NULL,
	total_relationship_count INTEGER NOT NULL,
	unique_relationship_types INTEGER NOT NULL,
	entity1_id TEXT NOT NULL,
	entity2_id TEXT NOT NULL,
	entity1 TEXT,
	entity2 TEXT,
	PRIMARY KEY (sorted_pair, relationship)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS consolidated_relationships (
	id INTEGER PRIMARY KEY,
	relationship TEXT NOT NULL,
	entity1 TEXT,
	entity2 TEXT,
	entity1_id TEXT NOT NULL,
	entity2_id TEXT NOT NULL,
	mode TEXT,
	source TEXT,
	chunk INTEGER
);
CREATE INDEX IF NOT EXISTS idx_consolidated_pair ON consolidated_relationships(entity1_id, entity2_id);
`

// WriteSQLite writes the run's tables into a fresh SQLite database at path,
// replacing any existing file.
func WriteSQLite(ctx context.Context, path string, ex SQLiteExport) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ex.Graph != nil {
		if err := insertCharacters(ctx, tx, ex.Graph, ex.Mentions); err != nil {
			return err
		}
		if err := insertEdges(ctx, tx, ex.Graph); err != nil {
			return err
		}
	}
	if err := insertCounts(ctx, tx, ex.Edges); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, ex.Rows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertCharacters(ctx context.Context, tx *sql.Tx, g *graph.Graph, m *graph.Mentions) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO characters (qid, name, aliases, mentions, size, community, unresolved, mention_chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare characters: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, n := range g.GetNodesByLabel(graph.NodeCharacter) {
		aliases, err := json.Marshal(n.Aliases)
		if err != nil {
			return err
		}
		var community any
		if n.Community >= 0 {
			community = n.Community
		}
		var chunks []byte
		if m != nil && m.Count(n.QID) > 0 {
			if chunks, err = m.Bitmap(n.QID); err != nil {
				return fmt.Errorf("encoding mentions of %s: %w", n.QID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, n.QID, n.Name, string(aliases), n.Mentions, n.Size, community, n.Unresolved, chunks); err != nil {
			return fmt.Errorf("insert character %s: %w", n.QID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, g *graph.Graph) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (entity1_id, entity2_id, relationship, weight, width, counts)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range g.GetRelationshipsByType(graph.RelRelated) {
		src, dst := g.GetNode(e.Source), g.GetNode(e.Target)
		if src == nil || dst == nil {
			continue
		}
		counts, err := json.Marshal(e.Counts)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, src.QID, dst.QID, e.Relation, e.Weight, e.Width, string(counts)); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}
	return nil
}

func insertCounts(ctx context.Context, tx *sql.Tx, edges []aggregate.EdgeRow) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationship_counts (sorted_pair, relationship, relationship_type_count,
			total_relationship_count, unique_relationship_types, entity1_id, entity2_id, entity1, entity2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare counts: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.Pair.String(), e.Relation, e.Count, e.Total, e.Unique,
			e.Entity1ID, e.Entity2ID, e.Entity1, e.Entity2); err != nil {
			return fmt.Errorf("insert count %s/%s: %w", e.Pair, e.Relation, err)
		}
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, rows []aggregate.Row) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO consolidated_relationships (relationship, entity1, entity2, entity1_id, entity2_id, mode, source, chunk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare rows: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Relation, r.Entity1, r.Entity2, r.Entity1ID, r.Entity2ID, r.Mode, r.Source, r.Chunk); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}
