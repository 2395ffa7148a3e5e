package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/brunobiangulo/faultgraph/priority"
)

func testRegistry() *priority.Registry {
	return priority.NewRegistry(priority.DefaultConfig())
}

func entity(name, typ, desc string) EntityMention {
	return EntityMention{Name: name, Type: typ, Description: desc, SourceID: "ACC-001"}
}

func relation(src, tgt string, weight float64, desc string) RelationMention {
	return RelationMention{Source: src, Target: tgt, Weight: weight, Description: desc, SourceID: "ACC-001"}
}

func chunkWith(entities []EntityMention, relations []RelationMention) ChunkResult {
	res := NewChunkResult()
	for _, e := range entities {
		res.Entities[e.Name] = append(res.Entities[e.Name], e)
	}
	for _, r := range relations {
		key := NewPairKey(r.Source, r.Target)
		res.Relations[key] = append(res.Relations[key], r)
	}
	return res
}

func TestNormalizeAttachesTierAndWeight(t *testing.T) {
	reg := testRegistry()
	res := chunkWith([]EntityMention{
		entity("mill", "device", "rolling mill"),
		entity("overheat", "fault", "bearing overheat"),
		entity("ghost", "unknown-type", ""),
	}, nil)

	norm := Normalize(res, reg)

	if m := norm.Entities["mill"][0]; m.Tier != 1 || m.Weight != 10.0 {
		t.Errorf("mill normalized to tier=%d weight=%v, want 1/10.0", m.Tier, m.Weight)
	}
	if m := norm.Entities["ghost"][0]; m.Tier != priority.UnknownTier || m.Weight != 1.0 {
		t.Errorf("unknown type normalized to tier=%d weight=%v, want %d/1.0",
			m.Tier, m.Weight, priority.UnknownTier)
	}
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	reg := testRegistry()
	res := chunkWith([]EntityMention{entity("mill", "device", "d")}, nil)

	Normalize(res, reg)

	if m := res.Entities["mill"][0]; m.Tier != 0 || m.Weight != 0 {
		t.Errorf("input mention mutated: tier=%d weight=%v", m.Tier, m.Weight)
	}
}

func TestNormalizeTierAdjacencyFilter(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name     string
		typeA    string
		typeB    string
		admitted bool
	}{
		{"same tier", "device", "fault", true},
		{"adjacent tiers", "device", "cause", true},
		{"two apart", "cause", "area", false},
		{"far apart", "device", "area", false},
		{"both unknown", "mystery-a", "mystery-b", true},
		{"known vs unknown", "device", "mystery", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := chunkWith([]EntityMention{
				entity("a", tt.typeA, ""),
				entity("b", tt.typeB, ""),
			}, []RelationMention{relation("a", "b", 1.0, "")})

			norm := Normalize(res, reg)
			_, ok := norm.Relations[NewPairKey("a", "b")]
			if ok != tt.admitted {
				t.Errorf("pair %s/%s admitted=%v, want %v", tt.typeA, tt.typeB, ok, tt.admitted)
			}
		})
	}
}

func TestNormalizeRelationshipScoring(t *testing.T) {
	reg := testRegistry()
	res := chunkWith([]EntityMention{
		entity("mill", "device", ""),   // weight 10
		entity("wear", "cause", ""),    // weight 7
	}, []RelationMention{relation("mill", "wear", 1.0, "wear caused trip")})

	norm := Normalize(res, reg)

	mentions := norm.Relations[NewPairKey("mill", "wear")]
	if len(mentions) != 1 {
		t.Fatalf("expected 1 relation mention, got %d", len(mentions))
	}
	// score = (10+7)/2 = 8.5; weight = 1.0 * 8.5/10 = 0.85
	if math.Abs(mentions[0].PriorityScore-8.5) > 1e-9 {
		t.Errorf("PriorityScore = %v, want 8.5", mentions[0].PriorityScore)
	}
	if math.Abs(mentions[0].Weight-0.85) > 1e-9 {
		t.Errorf("Weight = %v, want 0.85", mentions[0].Weight)
	}
}

func TestNormalizeUsesFirstMentionType(t *testing.T) {
	reg := testRegistry()
	res := NewChunkResult()
	// Same name mentioned twice with conflicting types; the first mention wins
	// for relationship scoring.
	res.Entities["pump"] = []EntityMention{
		entity("pump", "device", ""),
		entity("pump", "area", ""),
	}
	res.Entities["leak"] = []EntityMention{entity("leak", "fault", "")}
	key := NewPairKey("pump", "leak")
	res.Relations[key] = []RelationMention{relation("pump", "leak", 1.0, "")}

	norm := Normalize(res, reg)

	mentions, ok := norm.Relations[key]
	if !ok {
		t.Fatal("relation dropped; first-mention type should make tiers adjacent")
	}
	// device(10) + fault(9) → score 9.5
	if math.Abs(mentions[0].PriorityScore-9.5) > 1e-9 {
		t.Errorf("PriorityScore = %v, want 9.5 (device type from first mention)",
			mentions[0].PriorityScore)
	}
}

func TestMergeEntityBaseAndDescriptions(t *testing.T) {
	reg := testRegistry()

	// Two chunks mention the same entity under different types. The lowest
	// tier mention supplies the base fields; descriptions join in priority
	// order with duplicates preserved.
	chunk1 := chunkWith([]EntityMention{entity("mill", "area", "seen in area listing")}, nil)
	chunk2 := chunkWith([]EntityMention{entity("mill", "device", "the main rolling mill")}, nil)
	chunk3 := chunkWith([]EntityMention{entity("mill", "device", "the main rolling mill")}, nil)

	entities, _ := MergeChunks(reg, []ChunkResult{chunk1, chunk2, chunk3})

	if len(entities) != 1 {
		t.Fatalf("expected 1 merged entity, got %d", len(entities))
	}
	got := entities[0]
	if got.Type != "device" || got.Tier != 1 || got.Weight != 10.0 {
		t.Errorf("base = %s/tier %d/weight %v, want device/1/10.0", got.Type, got.Tier, got.Weight)
	}
	want := "the main rolling mill | the main rolling mill | seen in area listing"
	if got.Description != want {
		t.Errorf("Description = %q, want %q", got.Description, want)
	}
}

func TestMergeSkipsEmptyDescriptions(t *testing.T) {
	reg := testRegistry()
	chunk := chunkWith([]EntityMention{
		entity("mill", "device", ""),
		entity("mill", "device", "only description"),
	}, nil)

	entities, _ := MergeChunks(reg, []ChunkResult{chunk})

	if entities[0].Description != "only description" {
		t.Errorf("Description = %q, want %q", entities[0].Description, "only description")
	}
}

func TestMergeRelationshipMaxWeight(t *testing.T) {
	reg := testRegistry()

	// Same pair seen in two chunks with different raw confidences. The base
	// comes from the highest-scoring mention; the weight is the max across
	// all mentions.
	chunk1 := chunkWith([]EntityMention{
		entity("mill", "device", ""),
		entity("wear", "cause", ""),
	}, []RelationMention{relation("mill", "wear", 0.6, "weak evidence")})
	chunk2 := chunkWith([]EntityMention{
		entity("mill", "device", ""),
		entity("wear", "cause", ""),
	}, []RelationMention{relation("mill", "wear", 1.0, "strong evidence")})

	_, relationships := MergeChunks(reg, []ChunkResult{chunk1, chunk2})

	if len(relationships) != 1 {
		t.Fatalf("expected 1 merged relationship, got %d", len(relationships))
	}
	got := relationships[0]
	// Both mentions score 8.5; max weight = 1.0 * 8.5/10 = 0.85
	if math.Abs(got.Weight-0.85) > 1e-9 {
		t.Errorf("Weight = %v, want max 0.85", got.Weight)
	}
	if math.Abs(got.PriorityScore-8.5) > 1e-9 {
		t.Errorf("PriorityScore = %v, want 8.5", got.PriorityScore)
	}
}

func TestMergeUnorderedPair(t *testing.T) {
	reg := testRegistry()

	// (a,b) in one chunk and (b,a) in another are the same relationship.
	chunk1 := chunkWith([]EntityMention{
		entity("mill", "device", ""),
		entity("overheat", "fault", ""),
	}, []RelationMention{relation("mill", "overheat", 0.9, "")})
	chunk2 := chunkWith([]EntityMention{
		entity("mill", "device", ""),
		entity("overheat", "fault", ""),
	}, []RelationMention{relation("overheat", "mill", 0.9, "")})

	_, relationships := MergeChunks(reg, []ChunkResult{chunk1, chunk2})

	if len(relationships) != 1 {
		t.Fatalf("expected 1 relationship for unordered pair, got %d", len(relationships))
	}
}

func TestAggregateOrdering(t *testing.T) {
	reg := testRegistry()
	chunk := chunkWith([]EntityMention{
		entity("zone-b", "area", ""),
		entity("mill", "device", ""),
		entity("alpha", "device", ""),
		entity("wear", "cause", ""),
	}, nil)

	agg := Aggregate([]ChunkResult{Normalize(chunk, reg)})

	// Ascending tier; lexical within a tier.
	want := []string{"alpha", "mill", "wear", "zone-b"}
	if !reflect.DeepEqual(agg.EntityOrder, want) {
		t.Errorf("EntityOrder = %v, want %v", agg.EntityOrder, want)
	}
}

func TestMergeDeterminism(t *testing.T) {
	reg := testRegistry()
	chunks := []ChunkResult{
		chunkWith([]EntityMention{
			entity("mill", "device", "d1"),
			entity("overheat", "fault", "d2"),
			entity("wear", "cause", "d3"),
		}, []RelationMention{
			relation("mill", "overheat", 0.9, "r1"),
			relation("overheat", "wear", 0.7, "r2"),
		}),
		chunkWith([]EntityMention{
			entity("mill", "device", "d4"),
			entity("zhang", "person", ""),
		}, nil),
	}

	e1, r1 := MergeChunks(reg, chunks)
	e2, r2 := MergeChunks(reg, chunks)

	if !reflect.DeepEqual(e1, e2) {
		t.Error("entity merge is not deterministic for identical input")
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Error("relationship merge is not deterministic for identical input")
	}
}

func TestMergeIdempotentForSingletons(t *testing.T) {
	reg := testRegistry()
	chunk := chunkWith([]EntityMention{
		entity("mill", "device", "the mill"),
	}, nil)

	first, _ := MergeChunks(reg, []ChunkResult{chunk})

	// Re-merging the merged output as a single mention changes nothing.
	again := NewChunkResult()
	again.Entities["mill"] = []EntityMention{{
		Name:        first[0].Name,
		Type:        first[0].Type,
		Description: first[0].Description,
		SourceID:    first[0].SourceID,
	}}
	second, _ := MergeChunks(reg, []ChunkResult{again})

	if !reflect.DeepEqual(first, second) {
		t.Errorf("singleton re-merge changed output: %+v vs %+v", first, second)
	}
}

func TestNewPairKey(t *testing.T) {
	if k := NewPairKey("b", "a"); k.A != "a" || k.B != "b" {
		t.Errorf("NewPairKey(b, a) = %+v, want {a b}", k)
	}
	if NewPairKey("x", "y") != NewPairKey("y", "x") {
		t.Error("pair key is not direction independent")
	}
}
