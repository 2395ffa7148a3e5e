// Package faultgraph builds a priority-driven knowledge graph from equipment
// incident records and answers questions against it. Records are imported
// from Excel or PDF, entities and relationships are extracted with an LLM,
// merged by entity-type priority, and indexed for hybrid retrieval.
package faultgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/faultgraph/graph"
	"github.com/brunobiangulo/faultgraph/ingest"
	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/priority"
	"github.com/brunobiangulo/faultgraph/report"
	"github.com/brunobiangulo/faultgraph/retrieval"
	"github.com/brunobiangulo/faultgraph/store"
)

// Engine is the main entry point for the fault analysis engine.
type Engine interface {
	// ImportExcel loads incident records from an Excel export and ingests
	// them. Returns per-record results.
	ImportExcel(ctx context.Context, path string, opts ...ImportOption) ([]ImportResult, error)

	// ImportPDF extracts the text of a PDF incident report and ingests it as
	// a single record identified by the given accident code.
	ImportPDF(ctx context.Context, path, accidentCode string, opts ...ImportOption) (*ImportResult, error)

	// IngestRecords ingests already-structured incident records.
	IngestRecords(ctx context.Context, records []ingest.FaultRecord, opts ...ImportOption) ([]ImportResult, error)

	// Query answers a free-form question from the knowledge graph and the
	// underlying records.
	Query(ctx context.Context, question string, opts ...QueryOption) (*report.Answer, error)

	// Analyze generates an analysis report for one incident record.
	// analysisType is one of report.RootCauseAnalysis,
	// report.PreventiveMeasures, or report.Comprehensive.
	Analyze(ctx context.Context, accidentCode, analysisType string, opts ...AnalyzeOption) (*report.Report, error)

	// ListRecords returns all ingested incident records.
	ListRecords(ctx context.Context) ([]store.Record, error)

	// Stats returns row counts across the database.
	Stats(ctx context.Context) (*store.Stats, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// ImportResult reports the outcome of ingesting one record.
type ImportResult struct {
	AccidentCode string `json:"accident_code"`
	Changed      bool   `json:"changed"`
	Chunks       int    `json:"chunks"`
	Error        string `json:"error,omitempty"`
}

// ImportOption configures import behavior.
type ImportOption func(*importOptions)

type importOptions struct {
	forceReimport bool
}

// WithForceReimport re-extracts records even when their content hash is
// unchanged.
func WithForceReimport() ImportOption {
	return func(o *importOptions) { o.forceReimport = true }
}

// QueryOption configures query behavior.
type QueryOption func(*queryOptions)

type queryOptions struct {
	maxRecords int
}

// WithMaxRecords sets the maximum number of source records handed to answer
// generation.
func WithMaxRecords(n int) QueryOption {
	return func(o *queryOptions) { o.maxRecords = n }
}

// AnalyzeOption configures report generation behavior.
type AnalyzeOption func(*analyzeOptions)

type analyzeOptions struct {
	save bool
}

// WithSaveReport writes the generated report to the configured report
// directory.
func WithSaveReport() AnalyzeOption {
	return func(o *analyzeOptions) { o.save = true }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	chatLLM   llm.Provider
	embedLLM  llm.Provider
	registry  *priority.Registry
	chunker   *ingest.Chunker
	builder   *graph.Builder
	retriever *retrieval.Engine
	generator *report.Generator
}

// New creates a fault analysis engine with the given configuration.
func New(cfg Config) (Engine, error) {
	dbPath := cfg.resolveDBPath()

	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}

	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	prioCfg := cfg.Priority
	if len(prioCfg.Tiers) == 0 {
		prioCfg = priority.DefaultConfig()
	}
	registry := priority.NewRegistry(prioCfg)

	chunker := ingest.NewChunker(ingest.ChunkerConfig{
		MaxTokens: cfg.MaxChunkTokens,
		Overlap:   cfg.ChunkOverlap,
	})

	extractor := graph.NewExtractor(chatLLM, registry)
	builder := graph.NewBuilder(extractor, embedLLM, registry, s, cfg.GraphConcurrency)

	retriever := retrieval.New(s, embedLLM, retrieval.Config{
		TopKEntities:  cfg.TopKEntities,
		TopKRelations: cfg.TopKRelations,
		MaxRecords:    cfg.MaxRecords,
		WeightVector:  cfg.WeightVector,
		WeightFTS:     cfg.WeightFTS,
	})

	generator := report.New(chatLLM, report.Config{
		OutputDir:   cfg.ReportDir,
		Temperature: cfg.ReportTemperature,
		MaxTokens:   cfg.ReportMaxTokens,
	})

	return &engine{
		cfg:       cfg,
		store:     s,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		registry:  registry,
		chunker:   chunker,
		builder:   builder,
		retriever: retriever,
		generator: generator,
	}, nil
}

// ImportExcel loads and ingests all records from an Excel export.
func (e *engine) ImportExcel(ctx context.Context, path string, opts ...ImportOption) ([]ImportResult, error) {
	records, err := ingest.LoadExcel(path)
	if err != nil {
		return nil, fmt.Errorf("loading excel: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return e.ingest(ctx, records, path, opts)
}

// ImportPDF ingests a PDF incident report as one record.
func (e *engine) ImportPDF(ctx context.Context, path, accidentCode string, opts ...ImportOption) (*ImportResult, error) {
	text, err := ingest.LoadPDFText(path)
	if err != nil {
		return nil, fmt.Errorf("loading pdf: %w", err)
	}

	record := ingest.FaultRecord{
		AccidentCode: accidentCode,
		Description:  text,
	}
	results, err := e.ingest(ctx, []ingest.FaultRecord{record}, path, opts)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// IngestRecords ingests structured records directly.
func (e *engine) IngestRecords(ctx context.Context, records []ingest.FaultRecord, opts ...ImportOption) ([]ImportResult, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return e.ingest(ctx, records, "", opts)
}

// ingest upserts records, chunks the changed ones, and runs one extraction
// batch over all their chunks so the merge sees the whole import at once.
func (e *engine) ingest(ctx context.Context, records []ingest.FaultRecord, filePath string, opts []ImportOption) ([]ImportResult, error) {
	options := &importOptions{}
	for _, o := range opts {
		o(options)
	}

	start := time.Now()
	results := make([]ImportResult, len(records))
	var chunks []graph.Chunk
	var pendingIDs []int64

	for i, rec := range records {
		results[i].AccidentCode = rec.AccidentCode
		content := rec.Text()

		id, changed, err := e.store.UpsertRecord(ctx, store.Record{
			AccidentCode:   rec.AccidentCode,
			Content:        content,
			DeviceName:     rec.DeviceName,
			AreaName:       rec.AreaName,
			AccidentLevel:  rec.AccidentLevel,
			OccurrenceTime: rec.OccurrenceTime,
			FilePath:       filePath,
		})
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		if !changed && !options.forceReimport {
			continue
		}

		recChunks := e.chunker.Chunk(rec.SourceID(), filePath, content)
		results[i].Changed = true
		results[i].Chunks = len(recChunks)
		chunks = append(chunks, recChunks...)
		pendingIDs = append(pendingIDs, id)
	}

	if len(chunks) == 0 {
		slog.Info("ingest: nothing to extract", "records", len(records))
		return results, nil
	}

	slog.Info("ingest: building graph",
		"records", len(records), "chunks", len(chunks))

	if _, err := e.builder.Build(ctx, chunks); err != nil {
		for _, id := range pendingIDs {
			e.store.UpdateRecordStatus(ctx, id, "error")
		}
		return results, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	for _, id := range pendingIDs {
		e.store.UpdateRecordStatus(ctx, id, "ready")
	}

	slog.Info("ingest: complete",
		"records", len(records), "chunks", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return results, nil
}

// Query answers a free-form question over the knowledge graph.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*report.Answer, error) {
	options := &queryOptions{}
	for _, o := range opts {
		o(options)
	}

	res, err := e.retriever.Search(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if len(res.Entities) == 0 && len(res.Records) == 0 {
		return nil, ErrNoResults
	}
	if options.maxRecords > 0 && len(res.Records) > options.maxRecords {
		res.Records = res.Records[:options.maxRecords]
	}

	return e.generator.Answer(ctx, question, res)
}

// Analyze generates an analysis report for one incident.
func (e *engine) Analyze(ctx context.Context, accidentCode, analysisType string, opts ...AnalyzeOption) (*report.Report, error) {
	options := &analyzeOptions{}
	for _, o := range opts {
		o(options)
	}

	record, err := e.store.GetRecordByCode(ctx, accidentCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, accidentCode)
	}

	// Retrieve the incident's graph neighbourhood so the report can draw on
	// related historical incidents.
	res, err := e.retriever.Search(ctx, record.Content)
	if err != nil {
		slog.Warn("analyze: retrieval failed, generating from record only",
			"accident_code", accidentCode, "error", err)
		res = &retrieval.Result{}
	}

	rep, err := e.generator.Generate(ctx, *record, res, analysisType)
	if err != nil {
		return nil, err
	}

	if options.save {
		if err := e.generator.Save(rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// ListRecords returns all ingested incident records.
func (e *engine) ListRecords(ctx context.Context) ([]store.Record, error) {
	return e.store.ListRecords(ctx)
}

// Stats returns row counts across the database.
func (e *engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.DBStats(ctx)
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}
