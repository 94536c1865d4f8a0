package vectorstore

import "fmt"

const (
	// DefaultTopK is the hit limit when a retrieval request leaves it unset.
	DefaultTopK = 2

	// maxTopK bounds a single search to prevent resource exhaustion.
	maxTopK = 10000
)

// SearchOptions control one hybrid search.
type SearchOptions struct {
	// TopK is the maximum number of hits to return. Must be positive;
	// backends never apply a default.
	TopK int

	// ScoreThreshold drops hits whose score is not strictly greater.
	ScoreThreshold float64

	// DocumentIDs restricts hits to these canonical documents. A nil slice
	// means unrestricted; a non-nil empty slice matches nothing and the
	// search returns zero hits without touching the backend.
	DocumentIDs []string
}

// Validate checks the options. TopK above the safety cap is an error rather
// than a silent truncation.
func (o SearchOptions) Validate() error {
	if o.TopK <= 0 {
		return ErrInvalidTopK
	}
	if o.TopK > maxTopK {
		return fmt.Errorf("%w: top_k %d exceeds maximum %d", ErrInvalidTopK, o.TopK, maxTopK)
	}
	return nil
}

// MatchesNothing reports whether the document restriction is present but
// empty, which by contract yields zero hits.
func (o SearchOptions) MatchesNothing() bool {
	return o.DocumentIDs != nil && len(o.DocumentIDs) == 0
}

// allowedDocuments returns the restriction as a set, or nil when
// unrestricted.
func (o SearchOptions) allowedDocuments() map[string]struct{} {
	if o.DocumentIDs == nil {
		return nil
	}
	allowed := make(map[string]struct{}, len(o.DocumentIDs))
	for _, id := range o.DocumentIDs {
		allowed[id] = struct{}{}
	}
	return allowed
}
