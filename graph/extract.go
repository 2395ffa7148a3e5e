package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/priority"
)

// entityExtractionPrompt asks the LLM to extract only entities from an
// incident-report chunk. The entity vocabulary and its priority tiers are
// injected from the registry so extraction favours the types the merge
// engine ranks highest.
const entityExtractionPrompt = `You are an entity extraction engine for industrial incident reports.
Given the following report text, extract all entities.

ENTITY TYPES (use exactly these values):
%s

EXTRACTION PRIORITY:
%s
Prefer higher-priority entities, and when in doubt about a mention, resolve it
to the highest-priority type that fits.

Return a JSON object with exactly one key:
  "entities" : array of {"name": string, "type": string, "description": string}

Rules:
- Entity names must be normalised to lowercase.
- Only include entities clearly supported by the text.
- If there are none, return an empty array.
- Do NOT include any text outside the JSON object.

EXAMPLE:

Input: "At 03:12 the No.2 rolling mill tripped on bearing overheat. Operator Zhang Wei applied emergency lubrication in the cold-rolling area."
Output:
{"entities": [{"name": "no.2 rolling mill", "type": "device", "description": "Rolling mill that tripped"}, {"name": "bearing overheat", "type": "fault", "description": "Overheat condition on the mill bearing"}, {"name": "03:12", "type": "time", "description": "Time the trip occurred"}, {"name": "emergency lubrication", "type": "measure", "description": "Immediate corrective action applied"}, {"name": "zhang wei", "type": "person", "description": "Operator who handled the fault"}, {"name": "cold-rolling area", "type": "area", "description": "Plant area where the fault occurred"}]}

TEXT:
%s`

// relationshipExtractionPrompt asks the LLM, given the already-extracted
// entities, to find only relationships between them. Confidence weights are
// raw here; the merge engine rescales them against the endpoint priorities.
const relationshipExtractionPrompt = `You are a relationship extraction engine for industrial incident reports.
Given the text and a list of known entities, extract all relationships between them.

KNOWN ENTITIES:
%s

Return a JSON object with exactly one key:
  "relationships" : array of {"source": string, "target": string, "description": string, "keywords": string, "weight": number}

Rules:
- Source and target must be entity names from the KNOWN ENTITIES list above (lowercase).
- Keywords is a short comma-separated summary of the relationship.
- Weight is a float between 0.0 and 1.0 indicating confidence.
- Only include relationships clearly supported by the text.
- If there are none, return an empty array.
- Do NOT include any text outside the JSON object.

EXAMPLE:

Input entities: ["no.2 rolling mill", "bearing overheat", "emergency lubrication"]
Input text: "The No.2 rolling mill tripped on bearing overheat. Emergency lubrication restored operation."
Output:
{"relationships": [{"source": "no.2 rolling mill", "target": "bearing overheat", "description": "The mill tripped due to bearing overheat", "keywords": "trip, overheat", "weight": 0.95}, {"source": "emergency lubrication", "target": "bearing overheat", "description": "Emergency lubrication resolved the overheat", "keywords": "mitigation", "weight": 0.85}]}

TEXT:
%s`

// extractedEntity is the JSON shape returned by the entity extraction call.
type extractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// extractedRelationship is the JSON shape returned by the relationship
// extraction call.
type extractedRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
	Keywords    string  `json:"keywords"`
	Weight      float64 `json:"weight"`
}

type entityResult struct {
	Entities []extractedEntity `json:"entities"`
}

type relationshipResult struct {
	Relationships []extractedRelationship `json:"relationships"`
}

// Extractor turns raw report text into per-chunk extraction results via two
// focused LLM calls: entities first, then relationships over the fixed entity
// set.
type Extractor struct {
	chat llm.Provider
	reg  *priority.Registry
}

// NewExtractor creates an Extractor using the given chat provider and
// priority registry.
func NewExtractor(chat llm.Provider, reg *priority.Registry) *Extractor {
	return &Extractor{chat: chat, reg: reg}
}

// Extract runs the two-phase extraction for one chunk and returns the raw
// (un-normalized) result. sourceID and filePath are stamped onto every
// mention for provenance.
func (x *Extractor) Extract(ctx context.Context, sourceID, filePath, content string) (ChunkResult, error) {
	res := NewChunkResult()

	entities, err := x.extractEntities(ctx, content)
	if err != nil {
		return res, fmt.Errorf("entity extraction: %w", err)
	}

	for _, e := range entities {
		name := strings.TrimSpace(strings.ToLower(e.Name))
		if name == "" {
			continue
		}
		res.Entities[name] = append(res.Entities[name], EntityMention{
			Name:        name,
			Type:        strings.TrimSpace(strings.ToLower(e.Type)),
			Description: e.Description,
			SourceID:    sourceID,
			FilePath:    filePath,
		})
	}

	if len(res.Entities) < 2 {
		return res, nil
	}

	relationships, err := x.extractRelationships(ctx, content, res)
	if err != nil {
		return res, fmt.Errorf("relationship extraction: %w", err)
	}

	for _, r := range relationships {
		src := strings.TrimSpace(strings.ToLower(r.Source))
		tgt := strings.TrimSpace(strings.ToLower(r.Target))
		if src == "" || tgt == "" || src == tgt {
			continue
		}
		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}
		key := NewPairKey(src, tgt)
		res.Relations[key] = append(res.Relations[key], RelationMention{
			Source:      src,
			Target:      tgt,
			Weight:      weight,
			Description: r.Description,
			Keywords:    r.Keywords,
			SourceID:    sourceID,
			FilePath:    filePath,
		})
	}

	return res, nil
}

func (x *Extractor) extractEntities(ctx context.Context, content string) ([]extractedEntity, error) {
	prompt := fmt.Sprintf(entityExtractionPrompt,
		strings.Join(x.reg.OrderedEntityTypes(), ", "),
		x.tierListing(),
		content)

	resp, err := x.chat.Chat(ctx, llm.ChatRequest{
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing entity result: %w", err)
	}

	var result entityResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling entity result: %w", err)
	}
	return result.Entities, nil
}

func (x *Extractor) extractRelationships(ctx context.Context, content string, res ChunkResult) ([]extractedRelationship, error) {
	names := make([]string, 0, len(res.Entities))
	for name := range res.Entities {
		names = append(names, name)
	}
	sort.Strings(names)

	namesJSON, _ := json.Marshal(names)
	prompt := fmt.Sprintf(relationshipExtractionPrompt, string(namesJSON), content)

	resp, err := x.chat.Chat(ctx, llm.ChatRequest{
		Messages:       []llm.Message{{Role: "user", Content: prompt}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing relationship result: %w", err)
	}

	var result relationshipResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling relationship result: %w", err)
	}
	return result.Relationships, nil
}

// tierListing renders the priority table for the prompt, one line per tier.
func (x *Extractor) tierListing() string {
	byTier := make(map[int][]string)
	var tiers []int
	for _, label := range x.reg.OrderedEntityTypes() {
		t := x.reg.TierOf(label)
		if _, ok := byTier[t]; !ok {
			tiers = append(tiers, t)
		}
		byTier[t] = append(byTier[t], label)
	}
	sort.Ints(tiers)

	var b strings.Builder
	for i, t := range tiers {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Priority %d: %s", t, strings.Join(byTier[t], ", "))
	}
	if b.Len() == 0 {
		return "Priority 1: any"
	}
	return b.String()
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a valid JSON object in the LLM response text.
// It handles common LLM quirks: markdown code blocks, text before/after JSON.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}
