// Package retrieval answers questions against the incident knowledge graph:
// the question is embedded once, matched against the entity and relationship
// vector indexes, and combined with full-text search over the raw records.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/store"
)

// Config holds retrieval engine configuration.
type Config struct {
	TopKEntities  int     // KNN size for the entity index.
	TopKRelations int     // KNN size for the relationship index.
	MaxRecords    int     // Fused record limit handed to generation.
	WeightVector  float64 // RRF weight for graph-routed records.
	WeightFTS     float64 // RRF weight for full-text matches.
}

// DefaultConfig returns retrieval settings sized for interactive queries.
func DefaultConfig() Config {
	return Config{
		TopKEntities:  10,
		TopKRelations: 10,
		MaxRecords:    5,
		WeightVector:  1.0,
		WeightFTS:     1.0,
	}
}

// Result is everything retrieved for one question: the matched graph
// neighbourhood plus the source records that back it.
type Result struct {
	Entities  []store.NodeResult   `json:"entities"`
	Relations []store.EdgeResult   `json:"relations"`
	Records   []store.RecordResult `json:"records"`
	Trace     Trace                `json:"trace"`
}

// Trace records the breakdown of one retrieval, for debugging and the API.
type Trace struct {
	EntityHits   int   `json:"entity_hits"`
	RelationHits int   `json:"relation_hits"`
	FTSHits      int   `json:"fts_hits"`
	GraphRecords int   `json:"graph_records"`
	FusedRecords int   `json:"fused_records"`
	ElapsedMs    int64 `json:"elapsed_ms"`
}

// Engine performs hybrid retrieval over the graph and record stores.
type Engine struct {
	store    *store.Store
	embedder llm.Provider
	cfg      Config
}

// New creates a retrieval engine. Zero-value config fields fall back to
// DefaultConfig values.
func New(s *store.Store, embedder llm.Provider, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.TopKEntities <= 0 {
		cfg.TopKEntities = def.TopKEntities
	}
	if cfg.TopKRelations <= 0 {
		cfg.TopKRelations = def.TopKRelations
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.WeightVector == 0 {
		cfg.WeightVector = def.WeightVector
	}
	if cfg.WeightFTS == 0 {
		cfg.WeightFTS = def.WeightFTS
	}
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search retrieves the graph neighbourhood and source records most relevant
// to the question.
func (e *Engine) Search(ctx context.Context, question string) (*Result, error) {
	start := time.Now()

	embeddings, err := e.embedder.Embed(ctx, []string{question})
	if err != nil || len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	queryVec := embeddings[0]

	entities, err := e.store.VectorSearchNodes(ctx, queryVec, e.cfg.TopKEntities)
	if err != nil {
		return nil, fmt.Errorf("entity vector search: %w", err)
	}
	relations, err := e.store.VectorSearchEdges(ctx, queryVec, e.cfg.TopKRelations)
	if err != nil {
		return nil, fmt.Errorf("relation vector search: %w", err)
	}

	// Widen the relationship set with edges touching the matched entities,
	// so strongly connected neighbours appear even when their own embedding
	// missed the query.
	relations = e.expandRelations(ctx, entities, relations)

	// Graph-routed records: the provenance of the matched entities and
	// relationships, best graph hits first.
	graphRecords, err := e.store.GetRecordsByCodes(ctx, provenanceCodes(entities, relations))
	if err != nil {
		return nil, fmt.Errorf("loading graph records: %w", err)
	}

	ftsHits, err := e.store.FTSSearchRecords(ctx, ftsQuery(question), e.cfg.MaxRecords*2)
	if err != nil {
		slog.Warn("retrieval: fts search failed, continuing with graph records only",
			"error", err)
		ftsHits = nil
	}

	records := fuseRecords(graphRecords, ftsHits, e.cfg.WeightVector, e.cfg.WeightFTS, e.cfg.MaxRecords)

	res := &Result{
		Entities:  entities,
		Relations: relations,
		Records:   records,
		Trace: Trace{
			EntityHits:   len(entities),
			RelationHits: len(relations),
			FTSHits:      len(ftsHits),
			GraphRecords: len(graphRecords),
			FusedRecords: len(records),
			ElapsedMs:    time.Since(start).Milliseconds(),
		},
	}

	slog.Debug("retrieval: search complete",
		"entities", len(entities), "relations", len(relations),
		"records", len(records), "elapsed_ms", res.Trace.ElapsedMs)
	return res, nil
}

// expandRelations appends neighbour edges of the matched entities that the
// KNN search did not already return. Expansion hits carry no vector score.
func (e *Engine) expandRelations(ctx context.Context, entities []store.NodeResult, relations []store.EdgeResult) []store.EdgeResult {
	if len(entities) == 0 {
		return relations
	}

	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = ent.Name
	}

	neighbours, err := e.store.NeighborEdges(ctx, names, e.cfg.TopKRelations)
	if err != nil {
		slog.Warn("retrieval: neighbour expansion failed", "error", err)
		return relations
	}

	seen := make(map[int64]bool, len(relations))
	for _, r := range relations {
		seen[r.ID] = true
	}
	for _, edge := range neighbours {
		if seen[edge.ID] {
			continue
		}
		seen[edge.ID] = true
		relations = append(relations, store.EdgeResult{Edge: edge})
	}
	return relations
}

// provenanceCodes collects source accident codes from graph hits, highest
// scoring first, without duplicates.
func provenanceCodes(entities []store.NodeResult, relations []store.EdgeResult) []string {
	var codes []string
	seen := make(map[string]bool)
	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for _, e := range entities {
		add(e.SourceID)
	}
	for _, r := range relations {
		add(r.SourceID)
	}
	return codes
}

// ftsQuery turns a free-form question into an FTS5 OR-query of quoted terms.
// Quoting keeps FTS5 operators in user input from being interpreted.
func ftsQuery(question string) string {
	fields := strings.Fields(question)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"?!.,;:()`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, ``)+`"`)
	}
	return strings.Join(terms, " OR ")
}
