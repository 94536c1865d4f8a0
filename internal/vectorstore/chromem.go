package vectorstore

import (
	"context"
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// TypeChromem identifies the embedded chromem-go backend in index structs.
const TypeChromem = "chromem"

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory chromem persists collections under.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore answers hybrid searches from an embedded chromem-go
// database. Like the SQL backend it serves the hybrid contract with pure
// vector similarity; chromem has no keyword index.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	name       string
	logger     *zap.Logger
}

var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore opens (creating if necessary) the persistent database and
// binds the store to one collection.
//
// Embeddings are always supplied by the caller, so no embedding function is
// registered with chromem.
func NewChromemStore(config ChromemConfig, collection string, logger *zap.Logger) (*ChromemStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", ErrConnectionFailed, err)
	}
	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: getting/creating collection %s: %v", ErrConnectionFailed, collection, err)
	}

	return &ChromemStore{
		db:         db,
		collection: col,
		config:     config,
		name:       collection,
		logger:     logger.Named("vectorstore.chromem"),
	}, nil
}

// Type returns the backend identifier.
func (s *ChromemStore) Type() string {
	return TypeChromem
}

// AddTexts stores index nodes with their embeddings.
func (s *ChromemStore) AddTexts(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("%w: %d documents but %d vectors", ErrDimensionMismatch, len(docs), len(vectors))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.NodeID == "" {
			return fmt.Errorf("%w: document %d has no node id", ErrEmptyDocuments, i)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.NodeID,
			Content:   doc.Content,
			Embedding: vectors[i],
			Metadata: map[string]string{
				payloadNodeID:     doc.NodeID,
				payloadDocumentID: doc.DocumentID,
				payloadDatasetID:  doc.DatasetID,
				payloadDocHash:    doc.Hash,
			},
		}
	}

	// Concurrency of 1: embeddings are precomputed, nothing to parallelize.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents to collection %s: %w", s.name, err)
	}
	s.logger.Debug("added index nodes",
		zap.String("collection", s.name),
		zap.Int("count", len(docs)))
	return nil
}

// SearchByHybrid queries by embedding. Chromem requires nResults <= document
// count, so k is capped; when a document restriction is present the whole
// collection is fetched and filtered in process because chromem's where
// clause cannot express an id set.
func (s *ChromemStore) SearchByHybrid(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]HitDocument, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MatchesNothing() {
		return []HitDocument{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
	}

	count := s.collection.Count()
	if count == 0 {
		return []HitDocument{}, nil
	}

	allowed := opts.allowedDocuments()
	k := opts.TopK
	if allowed != nil {
		k = count
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.name, err)
	}

	hits := make([]HitDocument, 0, opts.TopK)
	for _, r := range results {
		documentID := r.Metadata[payloadDocumentID]
		if allowed != nil {
			if _, ok := allowed[documentID]; !ok {
				continue
			}
		}
		score := float64(r.Similarity)
		if score <= opts.ScoreThreshold {
			continue
		}

		metadata := make(map[string]any, len(r.Metadata))
		for key, value := range r.Metadata {
			metadata[key] = value
		}
		hits = append(hits, HitDocument{
			NodeID:     r.ID,
			DocumentID: documentID,
			Content:    r.Content,
			Score:      score,
			Metadata:   metadata,
		})
		if len(hits) == opts.TopK {
			break
		}
	}
	return hits, nil
}

// Delete drops the collection and all its documents.
func (s *ChromemStore) Delete(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.name, err)
	}
	return nil
}

// Close releases resources. The persistent database holds no connection to
// close.
func (s *ChromemStore) Close() error {
	return nil
}
