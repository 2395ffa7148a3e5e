// Package priority defines the entity-type priority hierarchy used to merge
// extraction results into the knowledge graph. Entity types are ranked into
// ordinal tiers (1 = highest) and carry a numeric weight; relationships are
// only admitted between types in the same or adjacent tiers, and relationship
// strength is derived from the endpoint weights.
package priority

import "sort"

// UnknownTier is the sentinel tier for entity types that are not registered.
const UnknownTier = 999

// defaultWeight is the weight for entity types that are not registered.
const defaultWeight = 1.0

// weightScale normalizes relationship weights. The default configuration
// assigns its highest weight as 10, so dividing by 10 keeps computed
// relationship weights on the same scale as the extractor's base weights.
// Alternate weight tables should keep their maximum weight near this value.
const weightScale = 10.0

// Config is the priority table supplied at construction. Tiers maps an
// ordinal tier (1 = highest) to the entity-type labels in that tier; slice
// order within a tier is the registration order used for tie-breaking.
// Weights maps entity-type labels to their salience. Both may be empty, in
// which case every lookup resolves to the unknown defaults.
type Config struct {
	Tiers   map[int][]string   `json:"tiers" yaml:"tiers"`
	Weights map[string]float64 `json:"weights" yaml:"weights"`
}

// DefaultConfig returns the standard four-tier table for incident analysis.
func DefaultConfig() Config {
	return Config{
		Tiers: map[int][]string{
			1: {"device", "fault", "time"},
			2: {"cause", "measure"},
			3: {"person"},
			4: {"area"},
		},
		Weights: map[string]float64{
			"device":  10.0,
			"fault":   9.0,
			"time":    8.0,
			"cause":   7.0,
			"measure": 6.0,
			"person":  5.0,
			"area":    4.0,
		},
	}
}

// Registry answers tier, weight, and adjacency queries for entity types.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	tiers   map[string]int
	weights map[string]float64
	ordered []string
}

// NewRegistry builds a Registry from the given table. If a type appears in
// more than one tier, the lowest (highest-priority) tier wins.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		tiers:   make(map[string]int, len(cfg.Weights)),
		weights: make(map[string]float64, len(cfg.Weights)),
	}

	tierNums := make([]int, 0, len(cfg.Tiers))
	for tier := range cfg.Tiers {
		tierNums = append(tierNums, tier)
	}
	sort.Ints(tierNums)

	for _, tier := range tierNums {
		for _, label := range cfg.Tiers[tier] {
			if _, ok := r.tiers[label]; ok {
				continue
			}
			r.tiers[label] = tier
			r.ordered = append(r.ordered, label)
		}
	}

	for label, w := range cfg.Weights {
		r.weights[label] = w
	}

	return r
}

// TierOf returns the configured tier for an entity type, or UnknownTier if
// the type is not registered.
func (r *Registry) TierOf(entityType string) int {
	if tier, ok := r.tiers[entityType]; ok {
		return tier
	}
	return UnknownTier
}

// WeightOf returns the configured weight for an entity type, or 1.0 if the
// type is not registered.
func (r *Registry) WeightOf(entityType string) float64 {
	if w, ok := r.weights[entityType]; ok {
		return w
	}
	return defaultWeight
}

// OrderedEntityTypes returns all registered entity-type labels ordered by
// ascending tier, ties broken by registration order within the tier. This is
// the type vocabulary handed to the extraction prompt.
func (r *Registry) OrderedEntityTypes() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IsAdjacent reports whether two tiers may be connected by a relationship:
// the tiers must be equal or differ by exactly one. Two unregistered types
// both resolve to UnknownTier and are therefore adjacent to each other.
func (r *Registry) IsAdjacent(tierA, tierB int) bool {
	d := tierA - tierB
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// RelationshipWeight computes the strength of a relationship from the two
// endpoint weights and the extractor's base weight: the base weight scaled by
// the mean endpoint weight over weightScale.
func (r *Registry) RelationshipWeight(weightA, weightB, baseWeight float64) float64 {
	return baseWeight * ((weightA + weightB) / 2) / weightScale
}
