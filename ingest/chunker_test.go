package ingest

import (
	"strings"
	"testing"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := NewChunker(ChunkerConfig{})

	chunks := c.Chunk("ACC-1", "file.xlsx", "short incident description")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].SourceID != "ACC-1" || chunks[0].FilePath != "file.xlsx" {
		t.Errorf("provenance not carried: %+v", chunks[0])
	}
	if chunks[0].Content != "short incident description" {
		t.Errorf("content altered: %q", chunks[0].Content)
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	if chunks := c.Chunk("ACC-1", "", "   \n\n  "); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank text, got %d", len(chunks))
	}
}

func TestChunkLongTextSplitsOnParagraphs(t *testing.T) {
	c := NewChunker(ChunkerConfig{MaxTokens: 30, Overlap: 5})

	para := strings.Repeat("word ", 15) // ~20 estimated tokens
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 4))

	chunks := c.Chunk("ACC-1", "", text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if estimateTokens(ch.Content) > 30+5 {
			t.Errorf("chunk %d exceeds budget: %d tokens", i, estimateTokens(ch.Content))
		}
	}
}

func TestChunkOversizedParagraph(t *testing.T) {
	c := NewChunker(ChunkerConfig{MaxTokens: 20, Overlap: 4})

	// One paragraph far over the window must still be split.
	text := strings.TrimSpace(strings.Repeat("token ", 100))
	chunks := c.Chunk("ACC-1", "", text)
	if len(chunks) < 2 {
		t.Fatalf("oversized paragraph not split, got %d chunks", len(chunks))
	}
}

func TestChunkOverlapCarriesTail(t *testing.T) {
	c := NewChunker(ChunkerConfig{MaxTokens: 30, Overlap: 10})

	first := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa quebec romeo sierra tango"
	second := "uniform victor whiskey xray yankee zulu one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	chunks := c.Chunk("ACC-1", "", first+"\n\n"+second)
	if len(chunks) < 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	// The second chunk starts with the tail of the first.
	lastWords := strings.Fields(chunks[0].Content)
	tail := lastWords[len(lastWords)-1]
	if !strings.Contains(chunks[1].Content, tail) {
		t.Errorf("second chunk missing overlap word %q:\n%s", tail, chunks[1].Content)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 0 {
		t.Errorf("estimateTokens(empty) = %d, want 0", got)
	}
	if got := estimateTokens("one two three four"); got != 6 { // ceil(4*1.3)
		t.Errorf("estimateTokens(4 words) = %d, want 6", got)
	}
}
