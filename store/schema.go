package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the vec0
// virtual table dimension and must match the embedding model.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Incident records with hash-based change detection
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY,
    accident_code TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    device_name TEXT,
    area_name TEXT,
    accident_level TEXT,
    occurrence_time TEXT,
    file_path TEXT,
    content_hash TEXT NOT NULL,
    status TEXT DEFAULT 'pending',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search over record content via FTS5
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
    content,
    content='records',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
    INSERT INTO records_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO records_fts(rowid, content) VALUES (new.id, new.content);
END;

-- Knowledge graph: canonical entities
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    tier INTEGER NOT NULL,
    weight REAL NOT NULL,
    description TEXT,
    source_id TEXT,
    file_path TEXT,
    vector_id TEXT UNIQUE,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Knowledge graph: canonical relationships (one row per unordered pair)
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    source_name TEXT NOT NULL,
    target_name TEXT NOT NULL,
    weight REAL DEFAULT 1.0,
    priority_score REAL DEFAULT 0,
    description TEXT,
    keywords TEXT,
    source_id TEXT,
    file_path TEXT,
    vector_id TEXT UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_name, target_name)
);

-- Vector indexes via sqlite-vec, keyed by node/edge rowid
CREATE VIRTUAL TABLE IF NOT EXISTS vec_nodes USING vec0(
    node_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_edges USING vec0(
    edge_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(entity_type);
CREATE INDEX IF NOT EXISTS idx_nodes_tier ON nodes(tier);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_name);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_name);
CREATE INDEX IF NOT EXISTS idx_records_hash ON records(content_hash);
`, embeddingDim, embeddingDim)
}
