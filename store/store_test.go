//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/faultgraph/graph"
)

const testDim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), testDim)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertRecordChangeDetection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, changed, err := s.UpsertRecord(ctx, Record{
		AccidentCode: "ACC-001",
		Content:      "mill tripped on overheat",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !changed {
		t.Error("first upsert should report changed")
	}

	// Same content: no change, same id.
	id2, changed, err := s.UpsertRecord(ctx, Record{
		AccidentCode: "ACC-001",
		Content:      "mill tripped on overheat",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if changed {
		t.Error("unchanged content should not report changed")
	}
	if id1 != id2 {
		t.Errorf("record id changed: %d vs %d", id1, id2)
	}

	// New content: changed, still same row.
	id3, changed, err := s.UpsertRecord(ctx, Record{
		AccidentCode: "ACC-001",
		Content:      "mill tripped on overheat, root cause found",
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if !changed || id3 != id1 {
		t.Errorf("changed=%v id=%d, want true/%d", changed, id3, id1)
	}

	rec, err := s.GetRecordByCode(ctx, "ACC-001")
	if err != nil {
		t.Fatalf("GetRecordByCode: %v", err)
	}
	if rec.Content != "mill tripped on overheat, root cause found" {
		t.Errorf("content not updated: %q", rec.Content)
	}
}

func TestFTSSearchRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for code, content := range map[string]string{
		"ACC-001": "rolling mill bearing overheat caused emergency stop",
		"ACC-002": "crane hoist cable inspection found no defects",
	} {
		if _, _, err := s.UpsertRecord(ctx, Record{AccidentCode: code, Content: content}); err != nil {
			t.Fatalf("upsert %s: %v", code, err)
		}
	}

	results, err := s.FTSSearchRecords(ctx, `"bearing" OR "overheat"`, 10)
	if err != nil {
		t.Fatalf("FTSSearchRecords: %v", err)
	}
	if len(results) != 1 || results[0].AccidentCode != "ACC-001" {
		t.Fatalf("results = %+v, want only ACC-001", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %v, want positive", results[0].Score)
	}
}

func TestSinkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entities := []graph.Entity{
		{Name: "mill", Type: "device", Tier: 1, Weight: 10, Description: "the mill", SourceID: "ACC-001"},
		{Name: "overheat", Type: "fault", Tier: 1, Weight: 9, Description: "overheat", SourceID: "ACC-001"},
	}
	if err := s.UpsertNodes(ctx, entities); err != nil {
		t.Fatalf("UpsertNodes: %v", err)
	}

	relationships := []graph.Relationship{{
		Source: "mill", Target: "overheat",
		Weight: 0.95, PriorityScore: 9.5,
		Description: "mill tripped on overheat", SourceID: "ACC-001",
	}}
	if err := s.UpsertEdges(ctx, relationships); err != nil {
		t.Fatalf("UpsertEdges: %v", err)
	}

	if err := s.UpsertEntityVectors(ctx, []graph.VectorRecord{
		{ID: graph.EntityVectorID("mill"), Embedding: []float32{1, 0, 0, 0}},
		{ID: graph.EntityVectorID("overheat"), Embedding: []float32{0, 1, 0, 0}},
	}); err != nil {
		t.Fatalf("UpsertEntityVectors: %v", err)
	}
	if err := s.UpsertRelationVectors(ctx, []graph.VectorRecord{
		{ID: graph.RelationVectorID("mill", "overheat"), Embedding: []float32{0, 0, 1, 0}},
	}); err != nil {
		t.Fatalf("UpsertRelationVectors: %v", err)
	}

	nodes, err := s.VectorSearchNodes(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearchNodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0].Name != "mill" {
		t.Fatalf("nodes = %+v, want mill nearest", nodes)
	}

	edges, err := s.VectorSearchEdges(ctx, []float32{0, 0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("VectorSearchEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].SourceName != "mill" || edges[0].TargetName != "overheat" {
		t.Fatalf("edges = %+v", edges)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Nodes != 2 || stats.Edges != 1 || stats.NodeEmbeddings != 2 || stats.EdgeEmbeddings != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpsertNodesOverwritesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertNodes(ctx, []graph.Entity{
		{Name: "mill", Type: "area", Tier: 4, Weight: 4, Description: "old"},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertNodes(ctx, []graph.Entity{
		{Name: "mill", Type: "device", Tier: 1, Weight: 10, Description: "new"},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	nodes, err := s.GetNodesByNames(ctx, []string{"mill"})
	if err != nil {
		t.Fatalf("GetNodesByNames: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected single row after re-upsert, got %d", len(nodes))
	}
	if nodes[0].EntityType != "device" || nodes[0].Description != "new" {
		t.Errorf("node not overwritten: %+v", nodes[0])
	}
}

func TestUpsertEdgesReversedPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertEdges(ctx, []graph.Relationship{
		{Source: "a", Target: "b", Weight: 0.5},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Same pair, opposite direction: must replace, not duplicate.
	if err := s.UpsertEdges(ctx, []graph.Relationship{
		{Source: "b", Target: "a", Weight: 0.9},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	edges, err := s.NeighborEdges(ctx, []string{"a"}, 10)
	if err != nil {
		t.Fatalf("NeighborEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge for the pair, got %d", len(edges))
	}
	if edges[0].SourceName != "b" || edges[0].Weight != 0.9 {
		t.Errorf("edge = %+v, want latest direction and weight", edges[0])
	}
}

func TestGetRecordsByCodesPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"ACC-001", "ACC-002", "ACC-003"} {
		if _, _, err := s.UpsertRecord(ctx, Record{AccidentCode: code, Content: code + " content"}); err != nil {
			t.Fatalf("upsert %s: %v", code, err)
		}
	}

	records, err := s.GetRecordsByCodes(ctx, []string{"ACC-003", "ACC-001", "ACC-999"})
	if err != nil {
		t.Fatalf("GetRecordsByCodes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].AccidentCode != "ACC-003" || records[1].AccidentCode != "ACC-001" {
		t.Errorf("order not preserved: %v, %v", records[0].AccidentCode, records[1].AccidentCode)
	}
}

func TestVectorUpsertSkipsMissingTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No node exists for this vector id; the upsert must skip it quietly.
	err := s.UpsertEntityVectors(ctx, []graph.VectorRecord{
		{ID: graph.EntityVectorID("phantom"), Embedding: []float32{1, 0, 0, 0}},
		{ID: graph.EntityVectorID("empty"), Embedding: nil},
	})
	if err != nil {
		t.Fatalf("UpsertEntityVectors: %v", err)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.NodeEmbeddings != 0 {
		t.Errorf("NodeEmbeddings = %d, want 0", stats.NodeEmbeddings)
	}
}

func TestSerializeFloat32(t *testing.T) {
	got := serializeFloat32([]float32{1.0})
	want := []byte{0x00, 0x00, 0x80, 0x3f} // little-endian IEEE 754
	if len(got) != 4 {
		t.Fatalf("length = %d, want 4", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("serializeFloat32(1.0) = % x, want % x", got, want)
		}
	}
}
