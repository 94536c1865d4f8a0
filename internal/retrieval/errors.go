package retrieval

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
)

// Caller-facing error categories. Input, permission and provider failures
// each get their own sentinel so callers can branch with errors.Is; the
// human-readable messages are part of the API contract.
var (
	// ErrInvalidArgument rejects malformed caller input before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDatasetNotFound means the dataset does not exist. Distinct from
	// ErrForbidden so "doesn't exist" never leaks as "can't see it" and
	// vice versa.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrForbidden means the dataset exists but the account may not read
	// it. Aliased so retrieval callers need not import the dataset
	// package to classify it.
	ErrForbidden = dataset.ErrNoPermission

	// ErrDatasetNotInitialized means the dataset has no provisioned
	// vector index yet. Retryable by the caller.
	ErrDatasetNotInitialized = errors.New("The dataset is still being initialized or indexing. Please wait a moment.")

	// ErrProviderNotConfigured means the embedding provider rejected the
	// configured credentials or none were supplied.
	ErrProviderNotConfigured = errors.New("No valid embedding provider credentials found. Please configure the embedding provider.")

	// ErrProviderQuotaExceeded means the embedding provider quota or rate
	// limit is exhausted.
	ErrProviderQuotaExceeded = errors.New("The embedding provider quota has been exhausted. Please check your plan and billing details.")

	// ErrModelNotSupported means the configured embedding model is not
	// available from the provider.
	ErrModelNotSupported = errors.New("The configured embedding model is currently not supported.")

	// ErrInvalidProviderRequest means the provider rejected the embedding
	// request as malformed.
	ErrInvalidProviderRequest = errors.New("The embedding request was rejected by the provider.")

	// ErrInternal masks unexpected failures. Details are logged
	// server-side, never surfaced to the caller.
	ErrInternal = errors.New("internal retrieval error")
)

// classifyEmbeddingError maps embedding provider failures onto the
// caller-facing taxonomy. Unknown failures become internal errors.
func classifyEmbeddingError(err error) error {
	switch {
	case errors.Is(err, embeddings.ErrInvalidConfig):
		return fmt.Errorf("%w: %v", ErrProviderNotConfigured, err)
	case errors.Is(err, embeddings.ErrQuotaExceeded):
		return fmt.Errorf("%w: %v", ErrProviderQuotaExceeded, err)
	case errors.Is(err, embeddings.ErrModelNotSupported):
		return fmt.Errorf("%w: %v", ErrModelNotSupported, err)
	case errors.Is(err, embeddings.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", ErrInvalidProviderRequest, err)
	default:
		return fmt.Errorf("%w: embedding query: %v", ErrInternal, err)
	}
}
