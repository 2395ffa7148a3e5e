package ingest

import (
	"math"
	"strings"

	"github.com/brunobiangulo/faultgraph/graph"
)

// ChunkerConfig controls how record text is split for extraction.
type ChunkerConfig struct {
	MaxTokens int // Maximum estimated tokens per chunk.
	Overlap   int // Token overlap between consecutive chunks.
}

// Chunker splits incident text into extraction-ready chunks.
type Chunker struct {
	cfg ChunkerConfig
}

// NewChunker returns a Chunker, replacing zero-value fields with defaults
// sized for incident records (most fit in a single chunk).
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 128
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits one document into graph.Chunk values carrying the given
// provenance. Text that fits within MaxTokens yields exactly one chunk.
func (c *Chunker) Chunk(sourceID, filePath, text string) []graph.Chunk {
	fragments := c.split(text)
	chunks := make([]graph.Chunk, 0, len(fragments))
	for _, frag := range fragments {
		chunks = append(chunks, graph.Chunk{
			SourceID: sourceID,
			FilePath: filePath,
			Content:  frag,
		})
	}
	return chunks
}

// split breaks text into fragments of at most MaxTokens estimated tokens,
// at paragraph boundaries where possible. Consecutive fragments share the
// trailing Overlap tokens of the previous fragment so entities straddling a
// boundary are seen by both extractions.
func (c *Chunker) split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if estimateTokens(text) <= c.cfg.MaxTokens {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)
	var fragments []string
	var current strings.Builder
	currentTokens := 0
	overlap := ""

	flush := func() {
		frag := strings.TrimSpace(current.String())
		if frag != "" {
			fragments = append(fragments, frag)
			overlap = tailTokens(frag, c.cfg.Overlap)
		}
		current.Reset()
		currentTokens = 0
		if overlap != "" {
			current.WriteString(overlap)
			current.WriteString("\n\n")
			currentTokens = estimateTokens(overlap)
		}
	}

	for _, para := range paragraphs {
		paraTokens := estimateTokens(para)
		if currentTokens > 0 && currentTokens+paraTokens > c.cfg.MaxTokens {
			flush()
		}

		// A single paragraph larger than the window is split on whitespace.
		if paraTokens > c.cfg.MaxTokens {
			for _, piece := range splitByTokens(para, c.cfg.MaxTokens) {
				current.WriteString(piece)
				current.WriteString("\n\n")
				currentTokens += estimateTokens(piece)
				flush()
			}
			continue
		}

		current.WriteString(para)
		current.WriteString("\n\n")
		currentTokens += paraTokens
	}

	if strings.TrimSpace(current.String()) != "" {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments
}

// estimateTokens approximates token count using a word-based heuristic.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tailTokens returns roughly the last n estimated tokens of text.
func tailTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	keep := int(float64(n) / 1.3)
	if keep <= 0 || keep >= len(words) {
		return ""
	}
	return strings.Join(words[len(words)-keep:], " ")
}

// splitByTokens hard-splits text on whitespace into pieces of at most
// maxTokens estimated tokens.
func splitByTokens(text string, maxTokens int) []string {
	words := strings.Fields(text)
	perPiece := int(float64(maxTokens) / 1.3)
	if perPiece <= 0 {
		perPiece = 1
	}
	var pieces []string
	for i := 0; i < len(words); i += perPiece {
		end := i + perPiece
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, strings.Join(words[i:end], " "))
	}
	return pieces
}
