package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

// TypeSQLite identifies the embedded SQL backend in index structs.
const TypeSQLite = "sqlite"

// SQLiteConfig holds configuration for the embedded SQL backend.
type SQLiteConfig struct {
	// Path is the database file holding every collection.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

// Validate validates the configuration.
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	return nil
}

// SQLiteStore answers hybrid searches from an embedded SQLite database.
//
// Index nodes live in one table keyed by collection. A search runs a single
// candidate query (restricted by document ids when the caller asks) and
// scores candidates in process with cosine similarity, where
// similarity = 1.0 - distance.
type SQLiteStore struct {
	db         *sql.DB
	config     SQLiteConfig
	collection string
	logger     *zap.Logger
}

var _ VectorStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) the embedded vector database
// and binds the store to one collection.
func NewSQLiteStore(config SQLiteConfig, collection string, logger *zap.Logger) (*SQLiteStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", ErrConnectionFailed, err)
		}
	}

	db, err := sql.Open("sqlite", config.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	s := &SQLiteStore{
		db:         db,
		config:     config,
		collection: collection,
		logger:     logger.Named("vectorstore.sqlite"),
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS embeddings (
			node_id TEXT NOT NULL,
			collection TEXT NOT NULL,
			document_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			vector BLOB NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, node_id)
		);
		CREATE INDEX IF NOT EXISTS idx_embeddings_document
			ON embeddings(collection, document_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, s.collection)
	if err != nil {
		return fmt.Errorf("registering collection: %w", err)
	}
	return nil
}

// Type returns the backend identifier.
func (s *SQLiteStore) Type() string {
	return TypeSQLite
}

// AddTexts stores index nodes with their embeddings. The first write pins
// the collection dimension; later writes must match it.
func (s *SQLiteStore) AddTexts(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("%w: %d documents but %d vectors", ErrDimensionMismatch, len(docs), len(vectors))
	}

	dim, err := s.collectionDimension(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, doc := range docs {
		if doc.NodeID == "" {
			return fmt.Errorf("%w: document %d has no node id", ErrEmptyDocuments, i)
		}
		if len(vectors[i]) == 0 {
			return fmt.Errorf("%w: empty vector for node %s", ErrDimensionMismatch, doc.NodeID)
		}
		if dim == 0 {
			dim = len(vectors[i])
		} else if len(vectors[i]) != dim {
			return fmt.Errorf("%w: node %s has dimension %d, collection has %d",
				ErrDimensionMismatch, doc.NodeID, len(vectors[i]), dim)
		}

		blob, err := encodeVector(vectors[i])
		if err != nil {
			return fmt.Errorf("encoding vector for node %s: %w", doc.NodeID, err)
		}
		metadata, err := json.Marshal(map[string]string{
			payloadDatasetID: doc.DatasetID,
			payloadDocHash:   doc.Hash,
		})
		if err != nil {
			return fmt.Errorf("encoding metadata for node %s: %w", doc.NodeID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO embeddings (node_id, collection, document_id, content, vector, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(collection, node_id) DO UPDATE SET
				document_id = excluded.document_id,
				content = excluded.content,
				vector = excluded.vector,
				metadata = excluded.metadata
		`, doc.NodeID, s.collection, doc.DocumentID, doc.Content, blob, string(metadata))
		if err != nil {
			return fmt.Errorf("upserting node %s: %w", doc.NodeID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE collections SET dimension = ? WHERE name = ? AND dimension = 0`, dim, s.collection)
	if err != nil {
		return fmt.Errorf("pinning collection dimension: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	s.logger.Debug("added index nodes",
		zap.String("collection", s.collection),
		zap.Int("count", len(docs)))
	return nil
}

// SearchByHybrid runs the candidate scan and scores it in process. The raw
// query text plays no part here: the embedded backend's hybrid contract is
// served entirely by vector similarity.
func (s *SQLiteStore) SearchByHybrid(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]HitDocument, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MatchesNothing() {
		return []HitDocument{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
	}

	dim, err := s.collectionDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection has %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	sqlQuery := `
		SELECT node_id, document_id, content, vector, metadata
		FROM embeddings
		WHERE collection = ?
	`
	args := []any{s.collection}
	if opts.DocumentIDs != nil {
		sqlQuery += fmt.Sprintf(" AND document_id IN (%s)", sqlPlaceholders(len(opts.DocumentIDs)))
		for _, id := range opts.DocumentIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	hits := make([]HitDocument, 0, opts.TopK)
	for rows.Next() {
		var nodeID, documentID, content string
		var blob []byte
		var metadataJSON sql.NullString
		if err := rows.Scan(&nodeID, &documentID, &content, &blob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		candidate, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for node %s: %w", nodeID, err)
		}

		score := cosineSimilarity(vector, candidate)
		if score <= opts.ScoreThreshold {
			continue
		}

		metadata := map[string]any{
			payloadNodeID:     nodeID,
			payloadDocumentID: documentID,
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var extra map[string]string
			if err := json.Unmarshal([]byte(metadataJSON.String), &extra); err != nil {
				return nil, fmt.Errorf("decoding metadata for node %s: %w", nodeID, err)
			}
			for k, v := range extra {
				metadata[k] = v
			}
		}

		hits = append(hits, HitDocument{
			NodeID:     nodeID,
			DocumentID: documentID,
			Content:    content,
			Score:      score,
			Metadata:   metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// Delete drops the collection and all its vectors.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) collectionDimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return 0, fmt.Errorf("querying collection dimension: %w", err)
	}
	return dim, nil
}

func sqlPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// encodeVector converts a float32 slice to bytes using little-endian
// encoding with an int32 length prefix.
func encodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, fmt.Errorf("%w: nil vector", ErrDimensionMismatch)
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("encoding vector length: %w", err)
	}
	for _, val := range vector {
		if err := binary.Write(buf, binary.LittleEndian, val); err != nil {
			return nil, fmt.Errorf("encoding vector value: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeVector converts bytes back to a float32 slice.
func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: vector blob too short", ErrDimensionMismatch)
	}
	buf := bytes.NewReader(data)

	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decoding vector length: %w", err)
	}
	if length < 0 || buf.Len() < int(length)*4 {
		return nil, fmt.Errorf("%w: vector blob truncated", ErrDimensionMismatch)
	}

	vector := make([]float32, length)
	for i := int32(0); i < length; i++ {
		if err := binary.Read(buf, binary.LittleEndian, &vector[i]); err != nil {
			return nil, fmt.Errorf("decoding vector value at index %d: %w", i, err)
		}
	}
	return vector, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has no magnitude or the dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
