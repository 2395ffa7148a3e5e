package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/priority"
)

// defaultConcurrency is the default semaphore size for parallel chunk
// extraction.
const defaultConcurrency = 8

// perChunkTimeout caps how long a single chunk extraction can take.
const perChunkTimeout = 90 * time.Second

// Chunk is one unit of report text handed to the extraction pipeline.
// SourceID and FilePath travel through to every mention extracted from it.
type Chunk struct {
	SourceID string
	FilePath string
	Content  string
}

// VectorRecord is one document handed to the vector index. ID is
// content-addressed so re-importing unchanged data overwrites in place.
type VectorRecord struct {
	ID        string
	Content   string
	Embedding []float32
}

// Sink receives the canonical output of a merge batch. Implementations own
// all persistence; the pipeline never retries sink failures.
type Sink interface {
	UpsertNodes(ctx context.Context, entities []Entity) error
	UpsertEdges(ctx context.Context, relationships []Relationship) error
	UpsertEntityVectors(ctx context.Context, records []VectorRecord) error
	UpsertRelationVectors(ctx context.Context, records []VectorRecord) error
}

// BuildStats summarizes one merge batch.
type BuildStats struct {
	Chunks        int
	FailedChunks  int
	Entities      int
	Relationships int
}

// Builder runs the batch pipeline: parallel per-chunk extraction and
// normalization, deterministic aggregation and merge, then the sink handoff.
type Builder struct {
	extractor   *Extractor
	embed       llm.Provider
	reg         *priority.Registry
	sink        Sink
	concurrency int
}

// NewBuilder creates a Builder. concurrency bounds the number of simultaneous
// chunk extractions; values <= 0 select the default.
func NewBuilder(extractor *Extractor, embed llm.Provider, reg *priority.Registry, sink Sink, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{
		extractor:   extractor,
		embed:       embed,
		reg:         reg,
		sink:        sink,
		concurrency: concurrency,
	}
}

// Build processes one batch of chunks end to end. Normalized results are
// collected in chunk order regardless of which worker finishes first, so the
// merge is reproducible for a given input order. If the context is cancelled
// before every chunk has been processed, the merge is not attempted.
func (b *Builder) Build(ctx context.Context, chunks []Chunk) (*BuildStats, error) {
	if len(chunks) == 0 {
		return &BuildStats{}, nil
	}

	slog.Info("graph: extracting chunks", "chunks", len(chunks), "concurrency", b.concurrency)
	start := time.Now()

	results := make([]ChunkResult, len(chunks))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sem    = make(chan struct{}, b.concurrency)
		failed int
	)

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			chunkCtx, cancel := context.WithTimeout(ctx, perChunkTimeout)
			defer cancel()

			raw, err := b.extractor.Extract(chunkCtx, chunk.SourceID, chunk.FilePath, chunk.Content)
			if err != nil {
				slog.Warn("graph: chunk extraction failed",
					"source_id", chunk.SourceID, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			// Normalization is pure and chunk-local, so it runs in the worker.
			results[i] = Normalize(raw, b.reg)
		}(i, chunk)
	}

	wg.Wait()

	// A partial batch must never reach the merge: a cancelled batch would
	// otherwise build the graph from whichever chunks happened to finish.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("graph: batch cancelled before merge: %w", err)
	}
	if failed == len(chunks) {
		return nil, fmt.Errorf("graph: all %d chunks failed extraction", len(chunks))
	}

	entities, relationships := Merge(Aggregate(results))

	slog.Info("graph: merge complete",
		"chunks", len(chunks), "failed", failed,
		"entities", len(entities), "relationships", len(relationships),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if err := b.flush(ctx, entities, relationships); err != nil {
		return nil, err
	}

	return &BuildStats{
		Chunks:        len(chunks),
		FailedChunks:  failed,
		Entities:      len(entities),
		Relationships: len(relationships),
	}, nil
}

// flush hands the canonical batch output to the sink: graph upserts first,
// then the two vector-index upserts.
func (b *Builder) flush(ctx context.Context, entities []Entity, relationships []Relationship) error {
	if err := b.sink.UpsertNodes(ctx, entities); err != nil {
		return fmt.Errorf("upserting nodes: %w", err)
	}
	if err := b.sink.UpsertEdges(ctx, relationships); err != nil {
		return fmt.Errorf("upserting edges: %w", err)
	}

	entityRecords := make([]VectorRecord, len(entities))
	entityTexts := make([]string, len(entities))
	for i, e := range entities {
		entityRecords[i] = VectorRecord{ID: EntityVectorID(e.Name), Content: EntityDocument(e)}
		entityTexts[i] = entityRecords[i].Content
	}

	relationRecords := make([]VectorRecord, len(relationships))
	relationTexts := make([]string, len(relationships))
	for i, r := range relationships {
		relationRecords[i] = VectorRecord{ID: RelationVectorID(r.Source, r.Target), Content: RelationDocument(r)}
		relationTexts[i] = relationRecords[i].Content
	}

	if err := b.embedRecords(ctx, entityRecords, entityTexts); err != nil {
		return fmt.Errorf("embedding entities: %w", err)
	}
	if err := b.embedRecords(ctx, relationRecords, relationTexts); err != nil {
		return fmt.Errorf("embedding relationships: %w", err)
	}

	if err := b.sink.UpsertEntityVectors(ctx, entityRecords); err != nil {
		return fmt.Errorf("upserting entity vectors: %w", err)
	}
	if err := b.sink.UpsertRelationVectors(ctx, relationRecords); err != nil {
		return fmt.Errorf("upserting relation vectors: %w", err)
	}
	return nil
}

// embedBatchSize is the number of texts sent per embedding request.
const embedBatchSize = 32

// embedRecords fills in Embedding for each record, batching requests. A
// failed batch falls back to per-text requests so one oversized document does
// not lose the whole batch; records that still fail keep a nil embedding and
// are skipped by the sink.
func (b *Builder) embedRecords(ctx context.Context, records []VectorRecord, texts []string) error {
	var failed int
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := b.embed.Embed(ctx, texts[i:end])
		if err != nil {
			slog.Warn("graph: embedding batch failed, falling back to individual",
				"batch_start", i, "batch_end", end, "error", err)
			for j := i; j < end; j++ {
				single, serr := b.embed.Embed(ctx, []string{texts[j]})
				if serr != nil || len(single) == 0 {
					failed++
					continue
				}
				records[j].Embedding = single[0]
			}
			continue
		}

		for j, emb := range embeddings {
			records[i+j].Embedding = emb
		}
	}

	if len(texts) > 0 && failed == len(texts) {
		return fmt.Errorf("all %d embeddings failed", len(texts))
	}
	if failed > 0 {
		slog.Warn("graph: some embeddings failed", "failed", failed, "total", len(texts))
	}
	return nil
}
