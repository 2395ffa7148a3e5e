package faultgraph

import "errors"

var (
	// ErrRecordNotFound is returned when an accident code does not exist.
	ErrRecordNotFound = errors.New("faultgraph: record not found")

	// ErrNoRecords is returned when an import source yields no records.
	ErrNoRecords = errors.New("faultgraph: no records to import")

	// ErrExtractionFailed is returned when entity extraction fails for an
	// entire batch.
	ErrExtractionFailed = errors.New("faultgraph: extraction failed")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("faultgraph: embedding generation failed")

	// ErrNoResults is returned when retrieval yields no matching context.
	ErrNoResults = errors.New("faultgraph: no results found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("faultgraph: invalid configuration")
)
