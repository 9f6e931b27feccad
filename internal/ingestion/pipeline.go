// Package ingestion turns narrative text into relation tuples, aggregated
// counts and the character graph.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Benny93/kin-go/internal/aggregate"
	"github.com/Benny93/kin-go/internal/graph"
	"github.com/Benny93/kin-go/internal/kb"
	"github.com/Benny93/kin-go/internal/logger"
	"github.com/Benny93/kin-go/internal/parsers"
	"github.com/Benny93/kin-go/internal/storage"
)

// ErrSourceNotFound is returned when the input text file does not exist.
var ErrSourceNotFound = errors.New("source text not found")

// DefaultMode tags records whose mode was not given.
const DefaultMode = "mixed"

// LoadText reads the input text file.
func LoadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// Options tune a pipeline run.
type Options struct {
	// SequentialMode chunks the text read by the sequential matcher.
	SequentialMode ChunkMode
	// SyntacticMode chunks the text read by the syntactic matcher.
	SyntacticMode ChunkMode
	// SyntacticOnResolved feeds the pronoun-resolved text to the syntactic
	// matcher instead of the original.
	SyntacticOnResolved bool
	// Coref enables the pronoun pass.
	Coref bool

	CrossChunkLookback bool
	DedupeRules        bool
	ProperNounsOnly    bool

	// Workers bounds per-chunk concurrency; zero means runtime.NumCPU().
	Workers int

	// Frequency overrides per-QID mention counts for node sizing.
	Frequency map[string]int
}

// DefaultOptions returns the options of a plain run.
func DefaultOptions() Options {
	return Options{
		SequentialMode:      ChunkSentence,
		SyntacticMode:       Chunk100Token,
		SyntacticOnResolved: true,
		Coref:               true,
		Workers:             runtime.NumCPU(),
	}
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	// Resolved is the pronoun-resolved text, one sentence per line. It is
	// the input text when the pronoun pass is off.
	Resolved string

	Rows     []aggregate.Row
	Edges    []aggregate.EdgeRow
	Pivot    aggregate.Pivot
	Stats    aggregate.Stats
	Mentions *graph.Mentions

	SequentialChunks int
	SyntacticChunks  int
	Tuples           int
	Characters       int
	Pairs            int
	Communities      int
	DurationSecs     float64
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

func report(progress ProgressCallback, phase string, p float64) {
	if progress != nil {
		progress(phase, p)
	}
	if p == 0 {
		logger.Debug("phase started", "phase", phase)
	}
}

// RunPipeline extracts relations from text, aggregates them and builds the
// character graph. When store is set the graph and mention sets are loaded
// into it.
func RunPipeline(
	ctx context.Context,
	text string,
	annotator parsers.Annotator,
	knowledge *kb.KnowledgeBase,
	store storage.StorageBackend,
	opts Options,
	progress ProgressCallback,
) (*graph.Graph, *PipelineResult, error) {
	start := time.Now()
	if knowledge == nil {
		knowledge = kb.New(nil)
	}
	result := &PipelineResult{Resolved: text, Mentions: graph.NewMentions()}
	seg := segmenterFor(annotator)
	norm := Normalizer{ProperNounsOnly: opts.ProperNounsOnly}

	if opts.Coref {
		report(progress, "Resolving pronouns", 0.0)
		resolved, err := resolveText(ctx, seg, annotator, norm, text, opts.workers())
		if err != nil {
			return nil, nil, fmt.Errorf("resolving pronouns: %w", err)
		}
		result.Resolved = resolved
		report(progress, "Resolving pronouns", 1.0)
	}

	report(progress, "Segmenting text", 0.0)
	seqChunks, err := seg.Split(ctx, text, opts.SequentialMode)
	if err != nil {
		return nil, nil, fmt.Errorf("segmenting: %w", err)
	}
	synSource := text
	if opts.SyntacticOnResolved {
		synSource = result.Resolved
	}
	synChunks, err := seg.Split(ctx, synSource, opts.SyntacticMode)
	if err != nil {
		return nil, nil, fmt.Errorf("segmenting: %w", err)
	}
	result.SequentialChunks = len(seqChunks)
	result.SyntacticChunks = len(synChunks)
	report(progress, "Segmenting text", 1.0)

	report(progress, "Annotating chunks", 0.0)
	seqDocs, err := annotateAll(ctx, annotator, seqChunks, &norm, opts.workers())
	if err != nil {
		return nil, nil, fmt.Errorf("annotating: %w", err)
	}
	report(progress, "Annotating chunks", 0.5)
	synDocs, err := annotateAll(ctx, annotator, synChunks, &norm, opts.workers())
	if err != nil {
		return nil, nil, fmt.Errorf("annotating: %w", err)
	}
	report(progress, "Annotating chunks", 1.0)

	report(progress, "Extracting relations", 0.0)
	agg := aggregate.NewAggregator()
	ex := &extraction{
		opts:     opts,
		kb:       knowledge,
		agg:      agg,
		mentions: result.Mentions,
		seqRows:  make([][]aggregate.Row, len(seqDocs)),
		synRows:  make([][]aggregate.Row, len(synDocs)),
	}
	if err := ex.run(ctx, seqDocs, synDocs); err != nil {
		return nil, nil, fmt.Errorf("extracting: %w", err)
	}
	result.Rows = ex.rows()
	result.Stats = ex.stats
	result.Tuples = ex.tuples
	report(progress, "Extracting relations", 1.0)

	g, err := finish(ctx, agg, knowledge, store, opts, result, progress)
	if err != nil {
		return nil, nil, err
	}
	result.DurationSecs = time.Since(start).Seconds()
	return g, result, nil
}

// RunTuples aggregates previously extracted relation tuples (3, 4 or 5
// fields each) and builds the character graph.
func RunTuples(
	ctx context.Context,
	tuples [][]string,
	knowledge *kb.KnowledgeBase,
	store storage.StorageBackend,
	opts Options,
	progress ProgressCallback,
) (*graph.Graph, *PipelineResult, error) {
	start := time.Now()
	if knowledge == nil {
		knowledge = kb.New(nil)
	}
	result := &PipelineResult{Tuples: len(tuples)}

	report(progress, "Consolidating tuples", 0.0)
	rows, stats := aggregate.ConsolidateTuples(tuples, aggregate.Defaults{Mode: DefaultMode}, knowledge)
	result.Rows, result.Stats = rows, stats
	agg := aggregate.NewAggregator()
	agg.AddAll(rows)
	report(progress, "Consolidating tuples", 1.0)

	g, err := finish(ctx, agg, knowledge, store, opts, result, progress)
	if err != nil {
		return nil, nil, err
	}
	result.DurationSecs = time.Since(start).Seconds()
	return g, result, nil
}

// finish runs the phases shared by both entry points: count tables, graph,
// communities and storage.
func finish(
	ctx context.Context,
	agg *aggregate.Aggregator,
	knowledge *kb.KnowledgeBase,
	store storage.StorageBackend,
	opts Options,
	result *PipelineResult,
	progress ProgressCallback,
) (*graph.Graph, error) {
	report(progress, "Aggregating", 0.0)
	result.Edges = agg.Rows()
	result.Pivot = aggregate.BuildPivot(result.Edges)
	result.Pairs = agg.Pairs()
	report(progress, "Aggregating", 1.0)

	report(progress, "Building graph", 0.0)
	g := graph.Build(result.Pivot, knowledge, graph.BuildOptions{
		Frequency: opts.Frequency,
		Mentions:  result.Mentions,
	})
	result.Characters = g.CountNodesByLabel(graph.NodeCharacter)
	report(progress, "Building graph", 1.0)

	report(progress, "Detecting communities", 0.0)
	result.Communities = DetectCommunities(g)
	report(progress, "Detecting communities", 1.0)

	if store != nil {
		report(progress, "Loading to storage", 0.0)
		if err := store.BulkLoad(ctx, g); err != nil {
			return nil, fmt.Errorf("bulk load: %w", err)
		}
		if result.Mentions != nil {
			if err := store.StoreMentions(ctx, result.Mentions); err != nil {
				return nil, fmt.Errorf("storing mentions: %w", err)
			}
		}
		report(progress, "Loading to storage", 1.0)
	}

	logger.Info("pipeline finished",
		"rows", len(result.Rows), "pairs", result.Pairs,
		"characters", result.Characters, "communities", result.Communities)
	return g, nil
}

// ResolveText runs only the pronoun pass and returns the resolved text, one
// sentence per line.
func ResolveText(ctx context.Context, text string, annotator parsers.Annotator, opts Options) (string, error) {
	norm := Normalizer{ProperNounsOnly: opts.ProperNounsOnly}
	resolved, err := resolveText(ctx, segmenterFor(annotator), annotator, norm, text, opts.workers())
	if err != nil {
		return "", fmt.Errorf("resolving pronouns: %w", err)
	}
	return resolved, nil
}

// segmenterFor uses the annotator's own sentence splitter when it has one.
func segmenterFor(annotator parsers.Annotator) Segmenter {
	if s, ok := annotator.(SentenceSplitter); ok {
		return Segmenter{Splitter: s}
	}
	return Segmenter{}
}

// resolveText runs the pronoun pass sentence by sentence. Annotation runs
// in parallel; substitution walks the sentences in order, threading the
// memory through.
func resolveText(ctx context.Context, seg Segmenter, annotator parsers.Annotator, norm Normalizer, text string, workers int) (string, error) {
	sents, err := seg.Split(ctx, text, ChunkSentence)
	if err != nil {
		return "", err
	}
	docs, err := annotateAll(ctx, annotator, sents, nil, workers)
	if err != nil {
		return "", err
	}

	resolver := PronounResolver{Normalizer: norm}
	var mem PronounMemory
	out := make([]string, len(sents))
	for i := range sents {
		out[i], mem = resolver.Resolve(mem, sents[i], docs[i].raw)
	}
	return strings.Join(out, "\n"), nil
}

// chunkDoc pairs a chunk's raw annotation with its normalized form, which
// is nil when no normalizer ran.
type chunkDoc struct {
	raw        *parsers.Document
	normalized *parsers.Document
}

// annotateAll annotates texts on a bounded worker pool, keeping input
// order. A non-nil norm also normalizes each document.
func annotateAll(ctx context.Context, annotator parsers.Annotator, texts []string, norm *Normalizer, workers int) ([]chunkDoc, error) {
	docs := make([]chunkDoc, len(texts))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, text := range texts {
		eg.Go(func() error {
			doc, err := annotator.Annotate(ctx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			docs[i] = chunkDoc{raw: doc}
			if norm != nil {
				docs[i].normalized = norm.Normalize(doc)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// extraction holds the shared state of the per-chunk matcher workers.
type extraction struct {
	opts     Options
	kb       *kb.KnowledgeBase
	agg      *aggregate.Aggregator
	mentions *graph.Mentions

	mu      sync.Mutex
	stats   aggregate.Stats
	tuples  int
	seqRows [][]aggregate.Row
	synRows [][]aggregate.Row
}

func (e *extraction) run(ctx context.Context, seqDocs, synDocs []chunkDoc) error {
	seq := SequentialMatcher{CrossChunkLookback: e.opts.CrossChunkLookback}
	syn := SyntacticMatcher{DedupeRules: e.opts.DedupeRules}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.opts.workers())

	for i, doc := range seqDocs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var previous []parsers.Span
			if i > 0 {
				previous = seqDocs[i-1].normalized.Ents
			}
			rels := seq.Match(doc.normalized.Ents, previous)
			e.recordMentions(doc.normalized, i)
			e.seqRows[i] = e.consolidate(rels, e.opts.SequentialMode, aggregate.SourceSequential, i)
			return nil
		})
	}
	for i, doc := range synDocs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rels := syn.Match(doc.normalized)
			e.synRows[i] = e.consolidate(rels, e.opts.SyntacticMode, aggregate.SourceSyntactic, i)
			return nil
		})
	}
	return eg.Wait()
}

// consolidate turns one chunk's relations into resolved rows and adds them
// to the aggregator.
func (e *extraction) consolidate(rels []Relation, mode ChunkMode, source string, chunk int) []aggregate.Row {
	defaults := aggregate.Defaults{Mode: DefaultMode}
	records := make([]aggregate.Record, 0, len(rels))
	for _, rel := range rels {
		rec, err := aggregate.NewRecord(append(rel.Fields(), string(mode), source), defaults)
		if err != nil {
			logger.Warn("skipping relation", "chunk", chunk, "err", err)
			continue
		}
		rec.Chunk = chunk
		records = append(records, rec)
	}

	rows, stats := aggregate.Consolidate(records, e.kb)
	e.agg.AddAll(rows)

	e.mu.Lock()
	e.stats.Merge(stats)
	e.tuples += len(rels)
	e.mu.Unlock()
	return rows
}

// recordMentions marks every resolved PERSON of a sequential chunk.
func (e *extraction) recordMentions(doc *parsers.Document, chunk int) {
	for _, span := range doc.EntsByLabel(parsers.LabelPerson) {
		if aggregate.IsPronoun(span.Text) {
			continue
		}
		if res := e.kb.Resolve(span.Text); res.Resolved() {
			e.mentions.Add(res.QID, uint32(chunk))
		}
	}
}

// rows returns sequential rows then syntactic rows, each in chunk order.
func (e *extraction) rows() []aggregate.Row {
	var out []aggregate.Row
	for _, rs := range e.seqRows {
		out = append(out, rs...)
	}
	for _, rs := range e.synRows {
		out = append(out, rs...)
	}
	return out
}
