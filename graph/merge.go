package graph

import (
	"sort"
	"strings"

	"github.com/brunobiangulo/faultgraph/priority"
)

// descriptionSeparator joins the per-mention descriptions of a merged entity,
// highest-priority mention first.
const descriptionSeparator = " | "

// Normalize attaches tier and weight to every entity mention in one chunk's
// extraction result, scores every relationship mention, and drops
// relationships whose endpoint tiers are not adjacent. It is a pure
// transformation: the input is not modified, no mention is dropped from the
// entity side, and missing types resolve to the unknown defaults rather than
// failing.
//
// An endpoint's type is taken from the first mention recorded under that name
// in this chunk. A name with no entity mention resolves to the empty type and
// therefore the unknown tier; a relationship between two such names survives
// the adjacency filter because both ends sit in the same sentinel tier.
func Normalize(res ChunkResult, reg *priority.Registry) ChunkResult {
	out := NewChunkResult()

	for name, mentions := range res.Entities {
		normalized := make([]EntityMention, len(mentions))
		for i, m := range mentions {
			m.Tier = reg.TierOf(m.Type)
			m.Weight = reg.WeightOf(m.Type)
			normalized[i] = m
		}
		out.Entities[name] = normalized
	}

	typeOf := func(name string) string {
		if mentions := out.Entities[name]; len(mentions) > 0 {
			return mentions[0].Type
		}
		return ""
	}

	for key, mentions := range res.Relations {
		srcType := typeOf(key.A)
		tgtType := typeOf(key.B)
		if !reg.IsAdjacent(reg.TierOf(srcType), reg.TierOf(tgtType)) {
			continue
		}

		srcWeight := reg.WeightOf(srcType)
		tgtWeight := reg.WeightOf(tgtType)
		score := (srcWeight + tgtWeight) / 2

		scored := make([]RelationMention, len(mentions))
		for i, m := range mentions {
			m.Weight = reg.RelationshipWeight(srcWeight, tgtWeight, m.Weight)
			m.PriorityScore = score
			scored[i] = m
		}
		out.Relations[key] = scored
	}

	return out
}

// Aggregated is the fan-in of all normalized chunk results for one batch,
// with every mention list and both processing orders sorted deterministically
// for the merge pass.
type Aggregated struct {
	// EntityOrder lists entity names by ascending minimum tier across their
	// mentions, ties broken lexically.
	EntityOrder []string
	Entities    map[string][]EntityMention

	// RelationOrder lists pair keys by descending maximum priority score
	// across their mentions, ties broken lexically on the key.
	RelationOrder []PairKey
	Relations     map[PairKey][]RelationMention
}

// Aggregate unions normalized per-chunk results into single candidate lists
// per entity name and per relationship pair, then sorts everything into the
// deterministic processing order the merge relies on. Given the same chunk
// order it always produces the same output: all sorts are stable and all ties
// fall back to lexical order.
func Aggregate(results []ChunkResult) *Aggregated {
	agg := &Aggregated{
		Entities:  make(map[string][]EntityMention),
		Relations: make(map[PairKey][]RelationMention),
	}

	for _, res := range results {
		for name, mentions := range res.Entities {
			agg.Entities[name] = append(agg.Entities[name], mentions...)
		}
		for key, mentions := range res.Relations {
			agg.Relations[key] = append(agg.Relations[key], mentions...)
		}
	}

	// Lowest tier first, higher weight first within a tier. Stable, so equal
	// mentions keep chunk order.
	for _, mentions := range agg.Entities {
		sort.SliceStable(mentions, func(i, j int) bool {
			if mentions[i].Tier != mentions[j].Tier {
				return mentions[i].Tier < mentions[j].Tier
			}
			return mentions[i].Weight > mentions[j].Weight
		})
	}

	for _, mentions := range agg.Relations {
		sort.SliceStable(mentions, func(i, j int) bool {
			return mentions[i].PriorityScore > mentions[j].PriorityScore
		})
	}

	agg.EntityOrder = make([]string, 0, len(agg.Entities))
	for name := range agg.Entities {
		agg.EntityOrder = append(agg.EntityOrder, name)
	}
	sort.Slice(agg.EntityOrder, func(i, j int) bool {
		a, b := agg.EntityOrder[i], agg.EntityOrder[j]
		ta, tb := agg.Entities[a][0].Tier, agg.Entities[b][0].Tier
		if ta != tb {
			return ta < tb
		}
		return a < b
	})

	agg.RelationOrder = make([]PairKey, 0, len(agg.Relations))
	for key := range agg.Relations {
		agg.RelationOrder = append(agg.RelationOrder, key)
	}
	sort.Slice(agg.RelationOrder, func(i, j int) bool {
		a, b := agg.RelationOrder[i], agg.RelationOrder[j]
		sa, sb := agg.Relations[a][0].PriorityScore, agg.Relations[b][0].PriorityScore
		if sa != sb {
			return sa > sb
		}
		if a.A != b.A {
			return a.A < b.A
		}
		return a.B < b.B
	})

	return agg
}

// Merge collapses every candidate list into one canonical entity per name and
// one canonical relationship per pair, in the aggregated processing order.
//
// The canonical entity takes its base fields from the lowest-tier mention
// (first in sorted order on ties) and concatenates every non-empty
// description, highest priority first, duplicates preserved. The canonical
// relationship takes its base fields from the highest-scoring mention but its
// weight is the maximum across all mentions of the pair, so edge strength
// reflects the strongest single observation.
func Merge(agg *Aggregated) ([]Entity, []Relationship) {
	entities := make([]Entity, 0, len(agg.EntityOrder))
	for _, name := range agg.EntityOrder {
		mentions := agg.Entities[name]
		if len(mentions) == 0 {
			continue
		}
		base := mentions[0]

		var descriptions []string
		for _, m := range mentions {
			if m.Description != "" {
				descriptions = append(descriptions, m.Description)
			}
		}

		entities = append(entities, Entity{
			Name:        base.Name,
			Type:        base.Type,
			Description: strings.Join(descriptions, descriptionSeparator),
			SourceID:    base.SourceID,
			FilePath:    base.FilePath,
			Tier:        base.Tier,
			Weight:      base.Weight,
		})
	}

	relationships := make([]Relationship, 0, len(agg.RelationOrder))
	for _, key := range agg.RelationOrder {
		mentions := agg.Relations[key]
		if len(mentions) == 0 {
			continue
		}
		base := mentions[0]

		maxWeight := base.Weight
		for _, m := range mentions[1:] {
			if m.Weight > maxWeight {
				maxWeight = m.Weight
			}
		}

		relationships = append(relationships, Relationship{
			Source:        base.Source,
			Target:        base.Target,
			Weight:        maxWeight,
			PriorityScore: base.PriorityScore,
			Description:   base.Description,
			Keywords:      base.Keywords,
			SourceID:      base.SourceID,
			FilePath:      base.FilePath,
		})
	}

	return entities, relationships
}

// MergeChunks runs the full normalize → aggregate → merge pass over raw
// per-chunk extraction results. Chunk order must be the caller's processing
// order; given identical input order the output is identical.
func MergeChunks(reg *priority.Registry, results []ChunkResult) ([]Entity, []Relationship) {
	normalized := make([]ChunkResult, len(results))
	for i, res := range results {
		normalized[i] = Normalize(res, reg)
	}
	return Merge(Aggregate(normalized))
}
