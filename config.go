package faultgraph

import (
	"os"
	"path/filepath"

	"github.com/brunobiangulo/faultgraph/priority"
)

// Config holds all configuration for the fault analysis engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.faultgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set. "home" (default) uses ~/.faultgraph/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Priority assigns extraction tiers and weights to entity types. Empty
	// tiers select the built-in fault-domain defaults.
	Priority priority.Config `json:"priority" yaml:"priority"`

	// Chunking
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Graph building
	GraphConcurrency int `json:"graph_concurrency" yaml:"graph_concurrency"` // Max parallel LLM calls for extraction

	// Retrieval
	TopKEntities  int     `json:"top_k_entities" yaml:"top_k_entities"`
	TopKRelations int     `json:"top_k_relations" yaml:"top_k_relations"`
	MaxRecords    int     `json:"max_records" yaml:"max_records"`
	WeightVector  float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS     float64 `json:"weight_fts" yaml:"weight_fts"`

	// Report generation
	ReportDir         string  `json:"report_dir" yaml:"report_dir"`
	ReportTemperature float64 `json:"report_temperature" yaml:"report_temperature"`
	ReportMaxTokens   int     `json:"report_max_tokens" yaml:"report_max_tokens"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, zhipu, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.faultgraph/faultgraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "faultgraph",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Priority:          priority.DefaultConfig(),
		MaxChunkTokens:    1024,
		ChunkOverlap:      128,
		GraphConcurrency:  8,
		TopKEntities:      10,
		TopKRelations:     10,
		MaxRecords:        5,
		WeightVector:      1.0,
		WeightFTS:         1.0,
		ReportDir:         "reports",
		ReportTemperature: 0.3,
		ReportMaxTokens:   2048,
		EmbeddingDim:      768,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "faultgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".faultgraph")
		return filepath.Join(dir, name+".db")
	}
}
