// Package store persists incident records, the knowledge graph, and the
// vector indexes in a single SQLite database, using sqlite-vec for KNN search
// and FTS5 for full-text search over record content.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/faultgraph/graph"
)

func init() {
	sqlite_vec.Auto()
}

// Record is a row in the records table.
type Record struct {
	ID             int64  `json:"id"`
	AccidentCode   string `json:"accident_code"`
	Content        string `json:"content"`
	DeviceName     string `json:"device_name,omitempty"`
	AreaName       string `json:"area_name,omitempty"`
	AccidentLevel  string `json:"accident_level,omitempty"`
	OccurrenceTime string `json:"occurrence_time,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	ContentHash    string `json:"content_hash"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Node is a row in the nodes table: one canonical entity.
type Node struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	EntityType  string  `json:"entity_type"`
	Tier        int     `json:"tier"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	SourceID    string  `json:"source_id,omitempty"`
	FilePath    string  `json:"file_path,omitempty"`
}

// Edge is a row in the edges table: one canonical relationship.
type Edge struct {
	ID            int64   `json:"id"`
	SourceName    string  `json:"source_name"`
	TargetName    string  `json:"target_name"`
	Weight        float64 `json:"weight"`
	PriorityScore float64 `json:"priority_score"`
	Description   string  `json:"description"`
	Keywords      string  `json:"keywords,omitempty"`
	SourceID      string  `json:"source_id,omitempty"`
	FilePath      string  `json:"file_path,omitempty"`
}

// NodeResult is a node with its retrieval score.
type NodeResult struct {
	Node
	Score float64 `json:"score"`
}

// EdgeResult is an edge with its retrieval score.
type EdgeResult struct {
	Edge
	Score float64 `json:"score"`
}

// RecordResult is a record with its retrieval score.
type RecordResult struct {
	Record
	Score float64 `json:"score"`
}

// Stats holds row counts for the whole database.
type Stats struct {
	Records        int `json:"records"`
	Nodes          int `json:"nodes"`
	Edges          int `json:"edges"`
	NodeEmbeddings int `json:"node_embeddings"`
	EdgeEmbeddings int `json:"edge_embeddings"`
}

// Store wraps the SQLite database for all faultgraph persistence. It
// implements graph.Sink so the build pipeline can write merge output
// directly.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Sink interface check.
var _ graph.Sink = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and initialises
// the schema, including the sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Record operations ---

// UpsertRecord inserts or updates an incident record keyed by accident code.
// It returns the record ID and whether the content changed since the last
// import, so unchanged records can skip re-extraction.
func (s *Store) UpsertRecord(ctx context.Context, r Record) (int64, bool, error) {
	hash := sha256.Sum256([]byte(r.Content))
	contentHash := hex.EncodeToString(hash[:])

	var existingID int64
	var existingHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, content_hash FROM records WHERE accident_code = ?",
		r.AccidentCode).Scan(&existingID, &existingHash)
	switch {
	case err == sql.ErrNoRows:
		// fall through to insert
	case err != nil:
		return 0, false, err
	case existingHash == contentHash:
		return existingID, false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (accident_code, content, device_name, area_name,
			accident_level, occurrence_time, file_path, content_hash, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(accident_code) DO UPDATE SET
			content = excluded.content,
			device_name = excluded.device_name,
			area_name = excluded.area_name,
			accident_level = excluded.accident_level,
			occurrence_time = excluded.occurrence_time,
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			status = 'pending',
			updated_at = CURRENT_TIMESTAMP
	`, r.AccidentCode, r.Content, r.DeviceName, r.AreaName,
		r.AccidentLevel, r.OccurrenceTime, r.FilePath, contentHash)
	if err != nil {
		return 0, false, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	if existingID != 0 {
		id = existingID
	}
	return id, true, nil
}

// GetRecordByCode retrieves a record by its accident code.
func (s *Store) GetRecordByCode(ctx context.Context, code string) (*Record, error) {
	r := &Record{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, accident_code, content, device_name, area_name, accident_level,
			occurrence_time, file_path, content_hash, status, created_at, updated_at
		FROM records WHERE accident_code = ?
	`, code).Scan(&r.ID, &r.AccidentCode, &r.Content, nullStr(&r.DeviceName),
		nullStr(&r.AreaName), nullStr(&r.AccidentLevel), nullStr(&r.OccurrenceTime),
		nullStr(&r.FilePath), &r.ContentHash, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecords returns all records ordered by creation time, newest first.
func (s *Store) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, accident_code, content, device_name, area_name, accident_level,
			occurrence_time, file_path, content_hash, status, created_at, updated_at
		FROM records ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AccidentCode, &r.Content, nullStr(&r.DeviceName),
			nullStr(&r.AreaName), nullStr(&r.AccidentLevel), nullStr(&r.OccurrenceTime),
			nullStr(&r.FilePath), &r.ContentHash, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecordsByCodes retrieves records matching any of the given accident
// codes, in the order the codes are given. Unknown codes are skipped.
func (s *Store) GetRecordsByCodes(ctx context.Context, codes []string) ([]Record, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, accident_code, content, device_name, area_name, accident_level,
			occurrence_time, file_path, content_hash, status, created_at, updated_at
		FROM records WHERE accident_code IN (?`+repeatPlaceholders(len(codes)-1)+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byCode := make(map[string]Record, len(codes))
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AccidentCode, &r.Content, nullStr(&r.DeviceName),
			nullStr(&r.AreaName), nullStr(&r.AccidentLevel), nullStr(&r.OccurrenceTime),
			nullStr(&r.FilePath), &r.ContentHash, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		byCode[r.AccidentCode] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(byCode))
	for _, c := range codes {
		if r, ok := byCode[c]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// UpdateRecordStatus updates just the status field.
func (s *Store) UpdateRecordStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE records SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// FTSSearchRecords performs a full-text search over record content using FTS5
// BM25 ranking.
func (s *Store) FTSSearchRecords(ctx context.Context, query string, limit int) ([]RecordResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rank,
			r.id, r.accident_code, r.content, r.device_name, r.area_name,
			r.accident_level, r.occurrence_time, r.file_path, r.content_hash,
			r.status, r.created_at, r.updated_at
		FROM records_fts f
		JOIN records r ON r.id = f.rowid
		WHERE records_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RecordResult
	for rows.Next() {
		var res RecordResult
		var rank float64
		if err := rows.Scan(&rank,
			&res.ID, &res.AccidentCode, &res.Content, nullStr(&res.DeviceName),
			nullStr(&res.AreaName), nullStr(&res.AccidentLevel), nullStr(&res.OccurrenceTime),
			nullStr(&res.FilePath), &res.ContentHash, &res.Status,
			&res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		res.Score = -rank
		results = append(results, res)
	}
	return results, rows.Err()
}

// --- graph.Sink implementation ---

// UpsertNodes writes merged entities, one row per entity name. Re-importing
// the same entity overwrites the row and keeps its rowid, so the vector index
// entry stays attached.
func (s *Store) UpsertNodes(ctx context.Context, entities []graph.Entity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO nodes (name, entity_type, tier, weight, description,
				source_id, file_path, vector_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				entity_type = excluded.entity_type,
				tier = excluded.tier,
				weight = excluded.weight,
				description = excluded.description,
				source_id = excluded.source_id,
				file_path = excluded.file_path,
				updated_at = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entities {
			if _, err := stmt.ExecContext(ctx, e.Name, e.Type, e.Tier, e.Weight,
				e.Description, e.SourceID, e.FilePath, graph.EntityVectorID(e.Name)); err != nil {
				return fmt.Errorf("upserting node %q: %w", e.Name, err)
			}
		}
		return nil
	})
}

// UpsertEdges writes merged relationships, one row per unordered pair. The
// stored direction is the direction of the mention the merge selected.
func (s *Store) UpsertEdges(ctx context.Context, relationships []graph.Relationship) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO edges (source_name, target_name, weight, priority_score,
				description, keywords, source_id, file_path, vector_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_name, target_name) DO UPDATE SET
				weight = excluded.weight,
				priority_score = excluded.priority_score,
				description = excluded.description,
				keywords = excluded.keywords,
				source_id = excluded.source_id,
				file_path = excluded.file_path
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range relationships {
			// A pair previously stored in the opposite direction is the same
			// relationship; drop that row (and its vector entry) so the pair
			// never appears twice.
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM vec_edges WHERE edge_id IN (
					SELECT id FROM edges WHERE source_name = ? AND target_name = ?
				)`, r.Target, r.Source); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM edges WHERE source_name = ? AND target_name = ?",
				r.Target, r.Source); err != nil {
				return err
			}

			if _, err := stmt.ExecContext(ctx, r.Source, r.Target, r.Weight,
				r.PriorityScore, r.Description, r.Keywords, r.SourceID, r.FilePath,
				graph.RelationVectorID(r.Source, r.Target)); err != nil {
				return fmt.Errorf("upserting edge %q -> %q: %w", r.Source, r.Target, err)
			}
		}
		return nil
	})
}

// UpsertEntityVectors writes entity embeddings keyed by node rowid, resolved
// through the content-addressed vector ID. Records without an embedding are
// skipped.
func (s *Store) UpsertEntityVectors(ctx context.Context, records []graph.VectorRecord) error {
	return s.upsertVectors(ctx, "nodes", "vec_nodes", "node_id", records)
}

// UpsertRelationVectors writes relationship embeddings keyed by edge rowid.
func (s *Store) UpsertRelationVectors(ctx context.Context, records []graph.VectorRecord) error {
	return s.upsertVectors(ctx, "edges", "vec_edges", "edge_id", records)
}

func (s *Store) upsertVectors(ctx context.Context, table, vecTable, keyCol string, records []graph.VectorRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		lookup, err := tx.PrepareContext(ctx,
			fmt.Sprintf("SELECT id FROM %s WHERE vector_id = ?", table))
		if err != nil {
			return err
		}
		defer lookup.Close()

		insert, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT OR REPLACE INTO %s (%s, embedding) VALUES (?, ?)", vecTable, keyCol))
		if err != nil {
			return err
		}
		defer insert.Close()

		for _, rec := range records {
			if len(rec.Embedding) == 0 {
				continue
			}
			var rowID int64
			if err := lookup.QueryRowContext(ctx, rec.ID).Scan(&rowID); err != nil {
				if err == sql.ErrNoRows {
					continue
				}
				return err
			}
			if _, err := insert.ExecContext(ctx, rowID, serializeFloat32(rec.Embedding)); err != nil {
				return fmt.Errorf("upserting vector %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// --- Graph reads ---

// VectorSearchNodes performs a KNN search returning the top-k nearest
// entities.
func (s *Store) VectorSearchNodes(ctx context.Context, queryEmbedding []float32, k int) ([]NodeResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.distance,
			n.id, n.name, n.entity_type, n.tier, n.weight, n.description,
			n.source_id, n.file_path
		FROM vec_nodes v
		JOIN nodes n ON n.id = v.node_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []NodeResult
	for rows.Next() {
		var res NodeResult
		var distance float64
		if err := rows.Scan(&distance,
			&res.ID, &res.Name, &res.EntityType, &res.Tier, &res.Weight,
			nullStr(&res.Description), nullStr(&res.SourceID), nullStr(&res.FilePath)); err != nil {
			return nil, err
		}
		// Convert distance to similarity score (1 - distance for cosine)
		res.Score = 1.0 - distance
		results = append(results, res)
	}
	return results, rows.Err()
}

// VectorSearchEdges performs a KNN search returning the top-k nearest
// relationships.
func (s *Store) VectorSearchEdges(ctx context.Context, queryEmbedding []float32, k int) ([]EdgeResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.distance,
			e.id, e.source_name, e.target_name, e.weight, e.priority_score,
			e.description, e.keywords, e.source_id, e.file_path
		FROM vec_edges v
		JOIN edges e ON e.id = v.edge_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EdgeResult
	for rows.Next() {
		var res EdgeResult
		var distance float64
		if err := rows.Scan(&distance,
			&res.ID, &res.SourceName, &res.TargetName, &res.Weight, &res.PriorityScore,
			nullStr(&res.Description), nullStr(&res.Keywords),
			nullStr(&res.SourceID), nullStr(&res.FilePath)); err != nil {
			return nil, err
		}
		res.Score = 1.0 - distance
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetNodesByNames retrieves nodes matching any of the given names.
func (s *Store) GetNodesByNames(ctx context.Context, names []string) ([]Node, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_type, tier, weight, description, source_id, file_path
		FROM nodes WHERE name IN (?`+repeatPlaceholders(len(names)-1)+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNodes(rows)
}

// NeighborEdges returns edges touching any of the given entity names, highest
// priority score first.
func (s *Store) NeighborEdges(ctx context.Context, names []string, limit int) ([]Edge, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := "?" + repeatPlaceholders(len(names)-1)
	args := make([]interface{}, 0, len(names)*2+1)
	for _, n := range names {
		args = append(args, n)
	}
	for _, n := range names {
		args = append(args, n)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, target_name, weight, priority_score,
			description, keywords, source_id, file_path
		FROM edges
		WHERE source_name IN (`+placeholders+`) OR target_name IN (`+placeholders+`)
		ORDER BY priority_score DESC, weight DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEdges(rows)
}

// TopNodes returns the highest-priority entities: lowest tier first, highest
// weight within a tier.
func (s *Store) TopNodes(ctx context.Context, limit int) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_type, tier, weight, description, source_id, file_path
		FROM nodes ORDER BY tier ASC, weight DESC, name ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNodes(rows)
}

// DBStats returns row counts across the database.
func (s *Store) DBStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM records", &stats.Records},
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM vec_nodes", &stats.NodeEmbeddings},
		{"SELECT COUNT(*) FROM vec_edges", &stats.EdgeEmbeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func scanNodes(rows *sql.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Name, &n.EntityType, &n.Tier, &n.Weight,
			nullStr(&n.Description), nullStr(&n.SourceID), nullStr(&n.FilePath)); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.SourceName, &e.TargetName, &e.Weight,
			&e.PriorityScore, nullStr(&e.Description), nullStr(&e.Keywords),
			nullStr(&e.SourceID), nullStr(&e.FilePath)); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// nullStr adapts a plain string field for scanning a nullable column.
type nullableString struct{ s *string }

func nullStr(s *string) *nullableString { return &nullableString{s: s} }

func (n *nullableString) Scan(src interface{}) error {
	var ns sql.NullString
	if err := ns.Scan(src); err != nil {
		return err
	}
	*n.s = ns.String
	return nil
}
