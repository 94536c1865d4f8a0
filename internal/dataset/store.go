package dataset

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/retrievald/internal/dataset/migrations"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// StoreConfig holds SQLite store configuration.
type StoreConfig struct {
	// Path is the database file. Parent directories are created as needed.
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *StoreConfig) ApplyDefaults() {
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
func (c *StoreConfig) Validate() error {
	if c.Path == "" {
		return errors.New("store path is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle conns (%d) must not exceed max open conns (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// Store is the SQLite-backed canonical record store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if necessary) the canonical store and runs
// pending migrations.
func NewStore(cfg StoreConfig) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL mode for concurrent readers during retrieval.
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: cfg.Path,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Datasets ====================

// SaveDataset stores or updates a dataset.
func (s *Store) SaveDataset(ctx context.Context, ds *Dataset) error {
	now := time.Now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, tenant_id, name, description, permission, data_source_type,
			indexing_technique, doc_form, index_struct, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			permission = excluded.permission,
			data_source_type = excluded.data_source_type,
			indexing_technique = excluded.indexing_technique,
			doc_form = excluded.doc_form,
			index_struct = excluded.index_struct,
			updated_at = excluded.updated_at
	`, ds.ID, ds.TenantID, ds.Name, ds.Description, string(ds.Permission), ds.DataSourceType,
		ds.IndexingTechnique, ds.DocForm, ds.IndexStruct, ds.CreatedBy, ds.CreatedAt, ds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	return nil
}

// GetDataset retrieves a dataset by id.
func (s *Store) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, permission, data_source_type,
			indexing_technique, doc_form, index_struct, created_by, created_at, updated_at
		FROM datasets WHERE id = ?
	`, id)

	var ds Dataset
	var permission string
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&ds.ID, &ds.TenantID, &ds.Name, &ds.Description, &permission,
		&ds.DataSourceType, &ds.IndexingTechnique, &ds.DocForm, &ds.IndexStruct,
		&ds.CreatedBy, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning dataset: %w", err)
	}
	ds.Permission = Permission(permission)
	if createdAt.Valid {
		ds.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		ds.UpdatedAt = updatedAt.Time
	}
	return &ds, nil
}

// UpdateDatasetIndexStruct persists the derived backend identification onto
// the dataset row. Called once on first adapter resolution.
func (s *Store) UpdateDatasetIndexStruct(ctx context.Context, datasetID, indexStruct string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET index_struct = ?, updated_at = ? WHERE id = ?`,
		indexStruct, time.Now().UTC(), datasetID)
	if err != nil {
		return fmt.Errorf("updating dataset index struct: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating dataset index struct: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ==================== Documents ====================

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	metadataJSON, err := encodeMetadata(doc.DocMetadata)
	if err != nil {
		return fmt.Errorf("marshalling doc metadata: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, dataset_id, name, data_source_type, doc_form,
			doc_metadata, word_count, indexing_status, enabled, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			data_source_type = excluded.data_source_type,
			doc_form = excluded.doc_form,
			doc_metadata = excluded.doc_metadata,
			word_count = excluded.word_count,
			indexing_status = excluded.indexing_status,
			enabled = excluded.enabled,
			archived = excluded.archived,
			updated_at = excluded.updated_at
	`, doc.ID, doc.TenantID, doc.DatasetID, doc.Name, doc.DataSourceType, doc.DocForm,
		metadataJSON, doc.WordCount, doc.IndexingStatus, doc.Enabled, doc.Archived,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetEligibleDocumentsByIDs batch-fetches retrieval-eligible documents
// (completed, enabled, not archived) for the given ids, selecting only the
// fields reconciliation needs. Missing or ineligible ids are simply absent
// from the result.
func (s *Store) GetEligibleDocumentsByIDs(ctx context.Context, datasetID string, ids []string) (map[string]*Document, error) {
	result := make(map[string]*Document, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
		SELECT id, name, doc_form, doc_metadata, data_source_type, dataset_id
		FROM documents
		WHERE dataset_id = ? AND indexing_status = 'completed' AND enabled = 1 AND archived = 0
			AND id IN (%s)
	`, placeholders(len(ids)))

	args := make([]any, 0, len(ids)+1)
	args = append(args, datasetID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc Document
		var metadataJSON sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.DocForm, &metadataJSON,
			&doc.DataSourceType, &doc.DatasetID); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.DocMetadata, err = decodeMetadata(metadataJSON.String)
		if err != nil {
			return nil, fmt.Errorf("unmarshalling doc metadata: %w", err)
		}
		doc.IndexingStatus = IndexingStatusCompleted
		doc.Enabled = true
		result[doc.ID] = &doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return result, nil
}

// GetDocument retrieves a document by id, regardless of eligibility.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, dataset_id, name, data_source_type, doc_form, doc_metadata,
			word_count, indexing_status, enabled, archived, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	var doc Document
	var metadataJSON sql.NullString
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.DatasetID, &doc.Name, &doc.DataSourceType,
		&doc.DocForm, &metadataJSON, &doc.WordCount, &doc.IndexingStatus, &doc.Enabled,
		&doc.Archived, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	var err error
	doc.DocMetadata, err = decodeMetadata(metadataJSON.String)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling doc metadata: %w", err)
	}
	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	return &doc, nil
}

// ==================== Segments ====================

// SaveSegment stores or updates a segment.
func (s *Store) SaveSegment(ctx context.Context, seg *Segment) error {
	now := time.Now().UTC()
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = now
	}
	seg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_segments (id, tenant_id, dataset_id, document_id, position, content,
			answer, word_count, tokens, index_node_id, index_node_hash, hit_count, enabled, status,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			content = excluded.content,
			answer = excluded.answer,
			word_count = excluded.word_count,
			tokens = excluded.tokens,
			index_node_id = excluded.index_node_id,
			index_node_hash = excluded.index_node_hash,
			enabled = excluded.enabled,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, seg.ID, seg.TenantID, seg.DatasetID, seg.DocumentID, seg.Position, seg.Content,
		seg.Answer, seg.WordCount, seg.Tokens, seg.IndexNodeID, seg.IndexNodeHash,
		seg.HitCount, seg.Enabled, seg.Status, seg.CreatedAt, seg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving segment: %w", err)
	}
	return nil
}

const segmentColumns = `id, tenant_id, dataset_id, document_id, position, content, answer,
	word_count, tokens, index_node_id, index_node_hash, hit_count, enabled, status,
	created_at, updated_at`

func scanSegment(row *sql.Row) (*Segment, error) {
	var seg Segment
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&seg.ID, &seg.TenantID, &seg.DatasetID, &seg.DocumentID, &seg.Position,
		&seg.Content, &seg.Answer, &seg.WordCount, &seg.Tokens, &seg.IndexNodeID,
		&seg.IndexNodeHash, &seg.HitCount, &seg.Enabled, &seg.Status,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning segment: %w", err)
	}
	if createdAt.Valid {
		seg.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		seg.UpdatedAt = updatedAt.Time
	}
	return &seg, nil
}

// GetServingSegmentByNodeID looks up an enabled, completed segment by its
// index node id within a dataset. Used for flat-form hit reconciliation.
func (s *Store) GetServingSegmentByNodeID(ctx context.Context, datasetID, indexNodeID string) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+segmentColumns+`
		FROM document_segments
		WHERE dataset_id = ? AND index_node_id = ? AND enabled = 1 AND status = 'completed'
	`, datasetID, indexNodeID)
	return scanSegment(row)
}

// GetServingSegmentByID looks up an enabled, completed segment by id within
// a dataset. Used for hierarchical-form hit reconciliation.
func (s *Store) GetServingSegmentByID(ctx context.Context, datasetID, segmentID string) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+segmentColumns+`
		FROM document_segments
		WHERE dataset_id = ? AND id = ? AND enabled = 1 AND status = 'completed'
	`, datasetID, segmentID)
	return scanSegment(row)
}

// IncrementHitCounts bumps hit_count for all given segments in one atomic
// statement. Safe under concurrent retrievals of the same segment.
func (s *Store) IncrementHitCounts(ctx context.Context, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE document_segments
		SET hit_count = hit_count + 1, updated_at = ?
		WHERE id IN (%s)
	`, placeholders(len(segmentIDs)))

	args := make([]any, 0, len(segmentIDs)+1)
	args = append(args, time.Now().UTC())
	for _, id := range segmentIDs {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("incrementing hit counts: %w", err)
	}
	return nil
}

// ==================== Child chunks ====================

// SaveChildChunk stores or updates a child chunk.
func (s *Store) SaveChildChunk(ctx context.Context, chunk *ChildChunk) error {
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO child_chunks (id, tenant_id, dataset_id, document_id, segment_id, position,
			content, word_count, index_node_id, index_node_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			content = excluded.content,
			word_count = excluded.word_count,
			index_node_id = excluded.index_node_id,
			index_node_hash = excluded.index_node_hash
	`, chunk.ID, chunk.TenantID, chunk.DatasetID, chunk.DocumentID, chunk.SegmentID,
		chunk.Position, chunk.Content, chunk.WordCount, chunk.IndexNodeID,
		chunk.IndexNodeHash, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving child chunk: %w", err)
	}
	return nil
}

// GetChildChunkByNodeID looks up a child chunk by its index node id within
// a dataset.
func (s *Store) GetChildChunkByNodeID(ctx context.Context, datasetID, indexNodeID string) (*ChildChunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, dataset_id, document_id, segment_id, position, content,
			word_count, index_node_id, index_node_hash, created_at
		FROM child_chunks
		WHERE dataset_id = ? AND index_node_id = ?
	`, datasetID, indexNodeID)

	var chunk ChildChunk
	var createdAt sql.NullTime
	if err := row.Scan(&chunk.ID, &chunk.TenantID, &chunk.DatasetID, &chunk.DocumentID,
		&chunk.SegmentID, &chunk.Position, &chunk.Content, &chunk.WordCount,
		&chunk.IndexNodeID, &chunk.IndexNodeHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning child chunk: %w", err)
	}
	if createdAt.Valid {
		chunk.CreatedAt = createdAt.Time
	}
	return &chunk, nil
}

// ==================== Permission grants ====================

// SavePermissionGrant stores an explicit per-account grant.
func (s *Store) SavePermissionGrant(ctx context.Context, grant *PermissionGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_permissions (id, dataset_id, account_id, tenant_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, grant.ID, grant.DatasetID, grant.AccountID, grant.TenantID)
	if err != nil {
		return fmt.Errorf("saving permission grant: %w", err)
	}
	return nil
}

// HasPermissionGrant reports whether the account holds an explicit grant on
// the dataset.
func (s *Store) HasPermissionGrant(ctx context.Context, datasetID, accountID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM dataset_permissions WHERE dataset_id = ? AND account_id = ? LIMIT 1
	`, datasetID, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying permission grant: %w", err)
	}
	return true, nil
}

// ==================== Query history ====================

// RecordQuery appends a retrieval query to the dataset's history.
func (s *Store) RecordQuery(ctx context.Context, q *Query) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_queries (id, dataset_id, content, source, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, q.ID, q.DatasetID, q.Content, q.Source, q.CreatedBy, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording query: %w", err)
	}
	return nil
}

// ListQueries returns the most recent queries for a dataset, newest first.
func (s *Store) ListQueries(ctx context.Context, datasetID string, limit int) ([]Query, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset_id, content, source, created_by, created_at
		FROM dataset_queries
		WHERE dataset_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dataset queries: %w", err)
	}
	defer rows.Close()

	var queries []Query
	for rows.Next() {
		var q Query
		var createdAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.DatasetID, &q.Content, &q.Source, &q.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning dataset query: %w", err)
		}
		if createdAt.Valid {
			q.CreatedAt = createdAt.Time
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dataset queries: %w", err)
	}
	return queries, nil
}

// ==================== helpers ====================

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// encodeMetadata renders metadata as a JSON column value. Nil maps to SQL
// NULL so json_extract stays well-defined for documents without metadata.
func encodeMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeMetadata(data string) (map[string]any, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(data), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
