// Package retrieval orchestrates single-dataset retrieval: request
// validation, permission gating, metadata filter compilation, query
// embedding, hybrid vector search, reconciliation against the canonical
// store and projection onto the external ranked-list schema.
//
// Callers receive errors from a small sentinel taxonomy (see errors.go)
// so transport layers can map outcomes without string matching.
package retrieval
