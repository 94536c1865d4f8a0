// Package dataset holds the canonical knowledge-base records and their
// SQLite-backed store: datasets, documents, segments, child chunks,
// permission grants and query history.
//
// Everything retrieval needs from the relational side lives here: eligible
// document lookups, the metadata filter compiler that turns structured
// conditions into a document-id allow-list, tenant permission checks, and
// signed-content generation for segments.
//
// The store is explicit everywhere. Entities are plain structs; all queries
// go through *Store methods with a context and, where relevant, an explicit
// principal. Nothing reads ambient session state.
package dataset
