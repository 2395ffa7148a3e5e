package graph

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntityMention is one raw observation of an entity in a single chunk. The
// same name may be mentioned many times across (and within) chunks before the
// merge collapses them. Tier and Weight are attached during normalization.
type EntityMention struct {
	Name        string  `json:"entity_name"`
	Type        string  `json:"entity_type"`
	Description string  `json:"description"`
	SourceID    string  `json:"source_id"`
	FilePath    string  `json:"file_path"`
	Tier        int     `json:"tier"`
	Weight      float64 `json:"weight"`
}

// RelationMention is one raw observation of a directed relationship between
// two named entities. Weight is the extractor's confidence until
// normalization replaces it with the priority-scaled weight; PriorityScore is
// the mean of the endpoint type weights.
type RelationMention struct {
	Source        string  `json:"src_id"`
	Target        string  `json:"tgt_id"`
	Weight        float64 `json:"weight"`
	PriorityScore float64 `json:"priority_score"`
	Description   string  `json:"description"`
	Keywords      string  `json:"keywords"`
	SourceID      string  `json:"source_id"`
	FilePath      string  `json:"file_path"`
}

// Entity is the single post-merge representative of an entity name.
type Entity struct {
	Name        string  `json:"entity_name"`
	Type        string  `json:"entity_type"`
	Description string  `json:"description"`
	SourceID    string  `json:"source_id"`
	FilePath    string  `json:"file_path"`
	Tier        int     `json:"tier"`
	Weight      float64 `json:"weight"`
}

// Relationship is the single post-merge representative of an unordered
// entity pair. Source and Target keep the direction of the mention chosen as
// the base; Weight is the maximum weight observed across all mentions of the
// pair.
type Relationship struct {
	Source        string  `json:"src_id"`
	Target        string  `json:"tgt_id"`
	Weight        float64 `json:"weight"`
	PriorityScore float64 `json:"priority_score"`
	Description   string  `json:"description"`
	Keywords      string  `json:"keywords"`
	SourceID      string  `json:"source_id"`
	FilePath      string  `json:"file_path"`
}

// PairKey identifies a relationship for merging. The pair is unordered: the
// lexically smaller name is always A, so (x,y) and (y,x) share one key.
type PairKey struct {
	A string
	B string
}

// NewPairKey returns the merge key for two entity names.
func NewPairKey(source, target string) PairKey {
	if source <= target {
		return PairKey{A: source, B: target}
	}
	return PairKey{A: target, B: source}
}

// ChunkResult holds one chunk's extraction output: every entity name maps to
// its mentions in that chunk, every pair key to its relationship mentions.
type ChunkResult struct {
	Entities  map[string][]EntityMention
	Relations map[PairKey][]RelationMention
}

// NewChunkResult returns an empty ChunkResult with initialized maps.
func NewChunkResult() ChunkResult {
	return ChunkResult{
		Entities:  make(map[string][]EntityMention),
		Relations: make(map[PairKey][]RelationMention),
	}
}

// EntityVectorID returns the content-addressed vector-index identifier for an
// entity, so re-importing unchanged data overwrites instead of duplicating.
func EntityVectorID(name string) string {
	return hashID("ent-", name)
}

// RelationVectorID returns the content-addressed vector-index identifier for
// a relationship.
func RelationVectorID(source, target string) string {
	return hashID("rel-", source+target)
}

func hashID(prefix, content string) string {
	sum := sha256.Sum256([]byte(content))
	return prefix + hex.EncodeToString(sum[:])
}

// EntityDocument is the text indexed for an entity in the vector store.
func EntityDocument(e Entity) string {
	return e.Name + "\n" + e.Description
}

// RelationDocument is the text indexed for a relationship in the vector store.
func RelationDocument(r Relationship) string {
	return r.Keywords + "\t" + r.Source + "\n" + r.Target + "\n" + r.Description
}
