package faultgraph

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.EmbeddingDim != 768 {
		t.Errorf("EmbeddingDim = %d, want 768", cfg.EmbeddingDim)
	}
	if cfg.Chat.Provider == "" || cfg.Embedding.Provider == "" {
		t.Error("default providers must be set")
	}
	if len(cfg.Priority.Tiers) == 0 {
		t.Error("default priority tiers must be set")
	}
	if cfg.MaxChunkTokens <= cfg.ChunkOverlap {
		t.Errorf("chunk window %d must exceed overlap %d", cfg.MaxChunkTokens, cfg.ChunkOverlap)
	}
}

func TestResolveDBPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want func(string) bool
	}{
		{
			"explicit path wins",
			Config{DBPath: "/tmp/x.db", DBName: "ignored", StorageDir: "local"},
			func(p string) bool { return p == "/tmp/x.db" },
		},
		{
			"local storage",
			Config{DBName: "plant", StorageDir: "local"},
			func(p string) bool { return p == "plant.db" },
		},
		{
			"home storage",
			Config{DBName: "plant"},
			func(p string) bool {
				return strings.Contains(p, ".faultgraph") && filepath.Base(p) == "plant.db"
			},
		},
		{
			"empty name falls back",
			Config{StorageDir: "local"},
			func(p string) bool { return p == "faultgraph.db" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.resolveDBPath()
			if !tt.want(got) {
				t.Errorf("resolveDBPath() = %q", got)
			}
		})
	}
}
