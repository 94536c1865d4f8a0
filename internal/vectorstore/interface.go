package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached at
	// construction time.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidTopK is returned for non-positive result limits. The message
	// is part of the API contract.
	ErrInvalidTopK = errors.New("top_k must be a positive integer")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrDimensionMismatch indicates a vector whose dimensionality does not
	// match the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// VectorStore is the uniform backend contract. One instance is bound to one
// dataset collection; the Factory hands instances out per dataset.
type VectorStore interface {
	// Type returns the backend identifier recorded in a dataset's index
	// struct, e.g. "qdrant".
	Type() string

	// AddTexts stores index nodes with their precomputed embeddings.
	// len(vectors) must equal len(docs).
	AddTexts(ctx context.Context, docs []Document, vectors [][]float32) error

	// SearchByHybrid answers a hybrid query: the embedded query vector
	// drives semantic similarity and the raw query text drives the keyword
	// leg where the backend supports one. Hits come back scored high to
	// low, already filtered by opts.
	SearchByHybrid(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]HitDocument, error)

	// Delete drops the collection and all its vectors.
	Delete(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Embedder generates vector embeddings from text. Implementations live in
// the embeddings package; the interface sits here so backends and their
// tests need no dependency on a concrete provider.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
