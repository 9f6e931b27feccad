// Package cmd provides CLI command implementations for kin.
package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/config"
	"github.com/Benny93/kin-go/internal/graph"
	"github.com/Benny93/kin-go/internal/ingestion"
	"github.com/Benny93/kin-go/internal/kb"
	"github.com/Benny93/kin-go/internal/logger"
	"github.com/Benny93/kin-go/internal/logger/console"
	"github.com/Benny93/kin-go/internal/parsers"
	"github.com/Benny93/kin-go/internal/storage"
	"github.com/Benny93/kin-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Files written into the output directory besides the CSV tables.
const (
	ResolvedFile = "resolved_book.txt"
	GMLFile      = "character_relationships.gml"
	GraphFile    = "graph.json"
	SQLiteFile   = "kin.db"
	MetaFile     = "meta.json"
	BadgerDir    = "badger"
)

// Globals are the flags shared by every command.
type Globals struct {
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Config  string `short:"c" type:"path" help:"YAML config file"`
}

func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// outDir returns the flag value, or the configured output directory.
func (g *Globals) outDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := g.load()
	if err != nil {
		return "", err
	}
	return cfg.Output.Dir, nil
}

func (g *Globals) progress() ingestion.ProgressCallback {
	if g.Quiet {
		return nil
	}
	return func(phase string, pct float64) {
		fmt.Printf("\r\033[K%s (%.0f%%)", phase, pct*100)
	}
}

// ExtractFlags tune extraction. Bool flags only move away from the
// configured defaults; the config file and KIN_ variables can set either
// way.
type ExtractFlags struct {
	SequentialMode string `help:"Chunk mode of the sequential matcher (sentence|paragraph|chapter|100token|none)"`
	SyntacticMode  string `help:"Chunk mode of the syntactic matcher (sentence|paragraph|chapter|100token|none)"`
	NoCoref        bool   `help:"Skip the pronoun pass"`
	OnOriginal     bool   `help:"Run the syntactic matcher on the original text instead of the resolved one"`
	Lookback       bool   `help:"Let the sequential matcher look into the previous chunk"`
	Dedupe         bool   `help:"Collapse identical relations found by several syntactic rules"`
	ProperNouns    bool   `help:"Only proper nouns extend a title run"`
	Workers        int    `short:"j" help:"Concurrent chunk workers (default: number of CPUs)"`
}

func (f ExtractFlags) apply(cfg *config.Config) {
	if f.SequentialMode != "" {
		cfg.Chunking.Sequential = f.SequentialMode
	}
	if f.SyntacticMode != "" {
		cfg.Chunking.Syntactic = f.SyntacticMode
	}
	if f.NoCoref {
		cfg.Extraction.Coref = false
	}
	if f.OnOriginal {
		cfg.Extraction.SyntacticOnResolved = false
	}
	if f.Lookback {
		cfg.Extraction.CrossChunkLookback = true
	}
	if f.Dedupe {
		cfg.Extraction.DedupeRules = true
	}
	if f.ProperNouns {
		cfg.Extraction.ProperNounsOnly = true
	}
	if f.Workers > 0 {
		cfg.Workers = f.Workers
	}
}

// OutputFlags select where and what is written.
type OutputFlags struct {
	Out       string `short:"o" type:"path" help:"Output directory (default: .kin)"`
	SQLite    bool   `help:"Also write the tables into a SQLite database"`
	Frequency string `type:"path" help:"CSV of QID,count pairs overriding mention counts for node sizes"`
}

func (f OutputFlags) apply(cfg *config.Config) {
	if f.Out != "" {
		cfg.Output.Dir = f.Out
	}
	if f.SQLite {
		cfg.Output.SQLite = true
	}
}

// AnalyzeCmd extracts the character network from a text.
type AnalyzeCmd struct {
	Text        string `arg:"" type:"path" help:"Input text (UTF-8)"`
	Roster      string `short:"r" type:"path" required:"" help:"Character roster CSV (QID, name, aliases)"`
	Annotations string `type:"path" help:"Pre-annotated documents (JSON lines) used before the built-in annotator"`

	ExtractFlags `embed:""`
	OutputFlags  `embed:""`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()
	return c.run(ctx, g)
}

func (c *AnalyzeCmd) run(ctx context.Context, g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	c.ExtractFlags.apply(cfg)
	c.OutputFlags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	text, err := ingestion.LoadText(c.Text)
	if err != nil {
		return err
	}
	knowledge, err := loadKnowledge(c.Roster)
	if err != nil {
		return err
	}
	annotator, err := loadAnnotator(c.Annotations)
	if err != nil {
		return err
	}
	opts := cfg.PipelineOptions()
	if opts.Frequency, err = readFrequency(c.Frequency); err != nil {
		return err
	}

	out := cfg.Output.Dir
	if !g.Quiet {
		color.Green("Analyzing %s", c.Text)
	}
	store, err := openStore(out)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gr, result, err := ingestion.RunPipeline(ctx, text, annotator, knowledge, store, opts, g.progress())
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	if !g.Quiet {
		fmt.Println()
	}

	if opts.Coref {
		if err := os.WriteFile(filepath.Join(out, ResolvedFile), []byte(result.Resolved+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing resolved text: %w", err)
		}
	}
	if err := writeOutputs(ctx, cfg, gr, result, c.Text, c.Roster); err != nil {
		return err
	}

	if !g.Quiet {
		printSummary(result, out)
	}
	return nil
}

// CorefCmd writes the pronoun-resolved text.
type CorefCmd struct {
	Text        string `arg:"" type:"path" help:"Input text (UTF-8)"`
	Annotations string `type:"path" help:"Pre-annotated documents (JSON lines) used before the built-in annotator"`
	Out         string `short:"o" type:"path" help:"Output directory (default: .kin)"`
	ProperNouns bool   `help:"Only proper nouns extend a title run"`
}

// Run executes the coref command.
func (c *CorefCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()

	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Out != "" {
		cfg.Output.Dir = c.Out
	}
	if c.ProperNouns {
		cfg.Extraction.ProperNounsOnly = true
	}

	text, err := ingestion.LoadText(c.Text)
	if err != nil {
		return err
	}
	annotator, err := loadAnnotator(c.Annotations)
	if err != nil {
		return err
	}

	resolved, err := ingestion.ResolveText(ctx, text, annotator, cfg.PipelineOptions())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(cfg.Output.Dir, ResolvedFile)
	if err := os.WriteFile(path, []byte(resolved+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing resolved text: %w", err)
	}
	if !g.Quiet {
		color.Green("✓ Wrote %s", path)
	}
	return nil
}

// AnnotateCmd caches annotations so later runs can skip the annotator.
type AnnotateCmd struct {
	Text string `arg:"" type:"path" help:"Input text (UTF-8)"`
	Mode string `short:"m" default:"sentence" help:"Chunk mode (sentence|paragraph|chapter|100token|none)"`
	Out  string `short:"o" type:"path" default:"annotations.jsonl" help:"Output file"`
}

// Run executes the annotate command.
func (c *AnnotateCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()

	mode, err := ingestion.ParseChunkMode(c.Mode)
	if err != nil {
		return err
	}
	text, err := ingestion.LoadText(c.Text)
	if err != nil {
		return err
	}

	annotator := parsers.NewProseAnnotator()
	chunks, err := ingestion.Segmenter{Splitter: annotator}.Split(ctx, text, mode)
	if err != nil {
		return fmt.Errorf("segmenting: %w", err)
	}

	docs := make([]*parsers.Document, 0, len(chunks))
	for i, chunk := range chunks {
		doc, err := annotator.Annotate(ctx, chunk)
		if err != nil {
			return fmt.Errorf("annotating chunk %d: %w", i, err)
		}
		docs = append(docs, doc)
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", c.Out, err)
	}
	if err := parsers.WriteDocuments(f, docs); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", c.Out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if !g.Quiet {
		color.Green("✓ Annotated %d chunks into %s", len(docs), c.Out)
	}
	return nil
}

// AggregateCmd consolidates and counts previously extracted relation
// tuples.
type AggregateCmd struct {
	Tuples string `arg:"" type:"path" help:"CSV of relation tuples (3, 4 or 5 fields per line)"`
	Roster string `short:"r" type:"path" required:"" help:"Character roster CSV (QID, name, aliases)"`

	OutputFlags `embed:""`
}

// Run executes the aggregate command.
func (c *AggregateCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()

	cfg, err := g.load()
	if err != nil {
		return err
	}
	c.OutputFlags.apply(cfg)

	f, err := os.Open(c.Tuples)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ingestion.ErrSourceNotFound, c.Tuples)
	}
	if err != nil {
		return err
	}
	tuples, err := aggregate.ReadTuples(f)
	f.Close()
	if err != nil {
		return err
	}

	knowledge, err := loadKnowledge(c.Roster)
	if err != nil {
		return err
	}
	opts := cfg.PipelineOptions()
	if opts.Frequency, err = readFrequency(c.Frequency); err != nil {
		return err
	}

	store, err := openStore(cfg.Output.Dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gr, result, err := ingestion.RunTuples(ctx, tuples, knowledge, store, opts, g.progress())
	if err != nil {
		return fmt.Errorf("aggregating: %w", err)
	}
	if !g.Quiet {
		fmt.Println()
	}
	if err := writeOutputs(ctx, cfg, gr, result, c.Tuples, c.Roster); err != nil {
		return err
	}
	if !g.Quiet {
		printSummary(result, cfg.Output.Dir)
	}
	return nil
}

// QueryCmd searches characters by name, alias or QID.
type QueryCmd struct {
	Query string `arg:"" help:"Name, alias or QID"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
	Out   string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
}

// Run executes the query command.
func (c *QueryCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := loadStorage(g, c.Out)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.FTSSearch(ctx, c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No characters found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n%d. %s (%s)\n", i+1, r.NodeName, r.QID)
		if chunks, err := store.GetMentions(ctx, r.QID); err == nil {
			fmt.Printf("   Mentions: %d chunks\n", len(chunks))
		}
		if r.Snippet != "" {
			fmt.Printf("   Aliases: %s\n", r.Snippet[:min(200, len(r.Snippet))])
		}
		fmt.Printf("   Score: %.3f\n", r.Score)
	}
	return nil
}

// RelationsCmd lists the relations of one character.
type RelationsCmd struct {
	Character string `arg:"" help:"Name, alias or QID of the character"`
	Out       string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
}

// Run executes the relations command.
func (c *RelationsCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := loadStorage(g, c.Out)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	node, err := findCharacter(ctx, store, c.Character)
	if err != nil {
		return err
	}
	if node == nil {
		fmt.Printf("Character '%s' not found in the graph.\n", c.Character)
		return nil
	}

	neighbors, err := store.GetNeighbors(ctx, node.ID)
	if err != nil {
		return err
	}

	color.Cyan("## %s (%s)", node.Name, node.QID)
	fmt.Printf("Mentions: %d\n", node.Mentions)
	if node.Community >= 0 {
		fmt.Printf("Community: %d\n", node.Community)
	}
	fmt.Println()

	if len(neighbors) == 0 {
		fmt.Println("No relations found.")
		return nil
	}
	for _, n := range neighbors {
		fmt.Printf("- %s (%s): %s x%d\n", n.Node.Name, n.Node.QID, n.Edge.Relation, n.Edge.Weight)
		for _, label := range sortedLabels(n.Edge.Counts) {
			if label != n.Edge.Relation {
				fmt.Printf("    %s x%d\n", label, n.Edge.Counts[label])
			}
		}
	}
	return nil
}

// PairsCmd lists the heaviest character pairs.
type PairsCmd struct {
	Limit int    `short:"n" default:"10" help:"Maximum pairs (0 for all)"`
	Out   string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
}

// Run executes the pairs command.
func (c *PairsCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := loadStorage(g, c.Out)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rels, err := store.TopPairs(ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Println("No character pairs found")
		return nil
	}
	for i, rel := range rels {
		fmt.Printf("%d. %s - %s: %s x%d\n", i+1,
			nodeName(ctx, store, rel.Source), nodeName(ctx, store, rel.Target), rel.Relation, rel.Weight)
	}
	return nil
}

// WatchCmd re-runs the analysis whenever the text or roster changes.
type WatchCmd struct {
	AnalyzeCmd `embed:""`

	Debounce time.Duration `default:"2s" help:"Quiet period before a re-run"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-osSignalChannel()
		fmt.Println("\nStopping watch mode...")
		cancel()
	}()

	if err := c.run(ctx, g); err != nil {
		return err
	}

	paths := []string{c.Text, c.Roster, c.Annotations, g.Config}
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", c.Text)

	err := ingestion.WatchFiles(ctx, paths, c.Debounce, func(ctx context.Context, changed []string) error {
		logger.Info("re-running analysis", "changed", changed)
		if err := c.run(ctx, g); err != nil {
			logger.Error("analysis failed", "err", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Println("Watch mode stopped.")
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	Out string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, stop := interruptContext()
	defer stop()

	store, err := loadStorage(g, c.Out)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// stdout carries JSON-RPC only.
	return mcp.NewServer(store).Run(ctx, os.Stdin, os.Stdout)
}

// StatusCmd shows the last run in the output directory.
type StatusCmd struct {
	Out string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	out, err := g.outDir(c.Out)
	if err != nil {
		return err
	}

	meta, err := readMeta(out)
	if err != nil {
		return err
	}

	fmt.Printf("Run status for %s\n", out)
	fmt.Printf("  Run ID:         %s\n", meta.RunID)
	fmt.Printf("  Version:        %s\n", meta.Version)
	fmt.Printf("  Source:         %s\n", meta.Source)
	if meta.Roster != "" {
		fmt.Printf("  Roster:         %s\n", meta.Roster)
	}
	fmt.Printf("  Last run:       %s\n", meta.IndexedAt)
	fmt.Printf("  Rows:           %d\n", meta.Stats.Rows)
	fmt.Printf("  Pairs:          %d\n", meta.Stats.Pairs)
	fmt.Printf("  Characters:     %d\n", meta.Stats.Characters)
	fmt.Printf("  Communities:    %d\n", meta.Stats.Communities)
	return nil
}

// CleanCmd deletes the output directory.
type CleanCmd struct {
	Out   string `short:"o" type:"path" help:"Output directory of the run (default: .kin)"`
	Force bool   `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	out, err := g.outDir(c.Out)
	if err != nil {
		return err
	}
	if _, err := os.Stat(out); os.IsNotExist(err) {
		return fmt.Errorf("no output found at %s. Nothing to clean", out)
	}

	if !c.Force {
		fmt.Printf("Delete %s? [y/N] ", out)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(out); err != nil {
		return fmt.Errorf("deleting output: %w", err)
	}
	if !g.Quiet {
		color.Green("Deleted %s", out)
	}
	return nil
}

// Helper functions

// runMeta is the content of meta.json.
type runMeta struct {
	RunID     string   `json:"run_id"`
	Version   string   `json:"version"`
	Source    string   `json:"source"`
	Roster    string   `json:"roster,omitempty"`
	IndexedAt string   `json:"indexed_at"`
	Stats     runStats `json:"stats"`
}

type runStats struct {
	SequentialChunks int             `json:"sequential_chunks"`
	SyntacticChunks  int             `json:"syntactic_chunks"`
	Tuples           int             `json:"tuples"`
	Rows             int             `json:"rows"`
	Pairs            int             `json:"pairs"`
	Characters       int             `json:"characters"`
	Communities      int             `json:"communities"`
	Consolidation    aggregate.Stats `json:"consolidation"`
	DurationSecs     float64         `json:"duration_secs"`
}

// writeOutputs writes the tables, graph exports, optional SQLite database
// and meta.json of a finished run.
func writeOutputs(ctx context.Context, cfg *config.Config, g *graph.Graph, result *ingestion.PipelineResult, source, roster string) error {
	out := cfg.Output.Dir
	tables := aggregate.Tables{Rows: result.Rows, Edges: result.Edges, Pivot: result.Pivot}
	if err := aggregate.WriteTables(out, tables); err != nil {
		return fmt.Errorf("writing tables: %w", err)
	}

	if err := writeWith(filepath.Join(out, GMLFile), func(w io.Writer) error { return graph.WriteGML(w, g) }); err != nil {
		return err
	}
	if err := writeWith(filepath.Join(out, GraphFile), func(w io.Writer) error { return graph.WriteJSON(w, g) }); err != nil {
		return err
	}

	if cfg.Output.SQLite {
		ex := storage.SQLiteExport{Graph: g, Rows: result.Rows, Edges: result.Edges, Mentions: result.Mentions}
		if err := storage.WriteSQLite(ctx, filepath.Join(out, SQLiteFile), ex); err != nil {
			return fmt.Errorf("writing sqlite: %w", err)
		}
	}

	meta := runMeta{
		RunID:     uuid.NewString(),
		Version:   Version,
		Source:    source,
		Roster:    roster,
		IndexedAt: time.Now().UTC().Format(time.RFC3339),
		Stats: runStats{
			SequentialChunks: result.SequentialChunks,
			SyntacticChunks:  result.SyntacticChunks,
			Tuples:           result.Tuples,
			Rows:             len(result.Rows),
			Pairs:            result.Pairs,
			Characters:       result.Characters,
			Communities:      result.Communities,
			Consolidation:    result.Stats,
			DurationSecs:     result.DurationSecs,
		},
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(out, MetaFile), metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

func writeWith(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func readMeta(out string) (*runMeta, error) {
	data, err := os.ReadFile(filepath.Join(out, MetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run found at %s. Run 'kin analyze' first", out)
		}
		return nil, fmt.Errorf("reading meta.json: %w", err)
	}
	var meta runMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta.json: %w", err)
	}
	return &meta, nil
}

func printSummary(result *ingestion.PipelineResult, out string) {
	color.Green("\n✓ Analysis complete")
	fmt.Printf("  Tuples:         %d\n", result.Tuples)
	fmt.Printf("  Rows kept:      %d\n", len(result.Rows))
	dropped := result.Stats.Relation + result.Stats.Pronoun + result.Stats.SelfPair + result.Stats.BadArity
	if dropped > 0 {
		color.Yellow("  Dropped:        %d (relation %d, pronoun %d, self-pair %d, arity %d)",
			dropped, result.Stats.Relation, result.Stats.Pronoun, result.Stats.SelfPair, result.Stats.BadArity)
	}
	fmt.Printf("  Pairs:          %d\n", result.Pairs)
	fmt.Printf("  Characters:     %d\n", result.Characters)
	fmt.Printf("  Communities:    %d\n", result.Communities)
	fmt.Printf("  Duration:       %.2fs\n", result.DurationSecs)
	fmt.Printf("  Output:         %s\n", out)
}

// errNoRoster is returned when a command that resolves mentions gets no
// roster; every mention would resolve to N/A and every record would drop.
var errNoRoster = errors.New("a character roster is required (--roster)")

func loadKnowledge(path string) (*kb.KnowledgeBase, error) {
	if path == "" {
		return nil, errNoRoster
	}
	chars, stats, err := kb.LoadRoster(path)
	if err != nil {
		return nil, err
	}
	logger.Info("roster loaded", "characters", stats.Loaded, "skipped", stats.Skipped)
	return kb.New(chars), nil
}

// loadAnnotator returns the prose annotator, fronted by cached documents
// when a file is given.
func loadAnnotator(path string) (parsers.Annotator, error) {
	prose := parsers.NewProseAnnotator()
	if path == "" {
		return prose, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening annotations: %w", err)
	}
	defer f.Close()

	docs, err := parsers.ReadDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("reading annotations %s: %w", path, err)
	}
	logger.Info("annotations loaded", "documents", len(docs))
	return parsers.NewStaticAnnotator(docs, prose), nil
}

// readFrequency reads QID,count lines. A header row and blank QIDs are
// skipped.
func readFrequency(path string) (map[string]int, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening frequency file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	freq := make(map[string]int)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading frequency file: %w", err)
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			if line == 1 {
				continue
			}
			logger.Warn("skipping frequency row", "line", line, "value", rec[1])
			continue
		}
		freq[strings.TrimSpace(rec[0])] = n
	}
	return freq, nil
}

func openStore(out string) (*storage.BadgerBackend, error) {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	store := storage.NewBadgerBackend()
	if err := store.Initialize(filepath.Join(out, BadgerDir), false); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

func loadStorage(g *Globals, flag string) (*storage.BadgerBackend, error) {
	out, err := g.outDir(flag)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(out, BadgerDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no graph found at %s. Run 'kin analyze' first", out)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(dbPath, true); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// findCharacter resolves a QID, exact name or best search hit to its node.
func findCharacter(ctx context.Context, store storage.StorageBackend, name string) (*graph.GraphNode, error) {
	if node, err := store.GetNode(ctx, graph.GenerateID(graph.NodeCharacter, name)); err == nil && node != nil {
		return node, nil
	}

	results, err := store.FTSSearch(ctx, name, 10)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	best := results[0]
	for _, r := range results {
		if strings.EqualFold(r.NodeName, name) {
			best = r
			break
		}
	}
	return store.GetNode(ctx, best.NodeID)
}

func nodeName(ctx context.Context, store storage.StorageBackend, nodeID string) string {
	node, err := store.GetNode(ctx, nodeID)
	if err != nil || node == nil {
		return nodeID
	}
	return node.Name
}

// sortedLabels orders relation labels by count, heaviest first.
func sortedLabels(counts map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	slices.SortFunc(labels, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	return labels
}

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Analyze   AnalyzeCmd   `cmd:"" help:"Extract the character network from a text"`
	Coref     CorefCmd     `cmd:"" help:"Write the pronoun-resolved text"`
	Annotate  AnnotateCmd  `cmd:"" help:"Cache annotations of a text as JSON lines"`
	Aggregate AggregateCmd `cmd:"" help:"Consolidate and count previously extracted relation tuples"`
	Query     QueryCmd     `cmd:"" help:"Search characters by name, alias or QID"`
	Relations RelationsCmd `cmd:"" help:"List the relations of a character"`
	Pairs     PairsCmd     `cmd:"" help:"List the heaviest character pairs"`
	Watch     WatchCmd     `cmd:"" help:"Re-run the analysis when the text or roster changes"`
	Setup     SetupCmd     `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`
	MCP       MCPCmd       `cmd:"" help:"Start MCP server (stdio transport)"`
	Status    StatusCmd    `cmd:"" help:"Show the last run"`
	Clean     CleanCmd     `cmd:"" help:"Delete the output directory"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("kin"),
		kong.Description("Character social-network extraction from novels"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger.Init(console.New(console.Params{Debug: c.Verbose}))
	return kongCtx.Run(&c.Globals)
}
