package vectorstore

// Payload keys shared by all backends. NodeID travels as "doc_id" for
// compatibility with indexes written by earlier versions.
const (
	payloadContent    = "content"
	payloadNodeID     = "doc_id"
	payloadDocumentID = "document_id"
	payloadDatasetID  = "dataset_id"
	payloadDocHash    = "doc_hash"
)

// Document is an index node to be stored in a vector collection. For flat
// doc forms the node is the segment itself; for hierarchical forms it is a
// child chunk.
type Document struct {
	// NodeID is the index node id, unique within the collection.
	NodeID string

	// DocumentID is the canonical document the node belongs to. Searches
	// can be restricted to a set of document ids.
	DocumentID string

	// DatasetID scopes the node to its dataset.
	DatasetID string

	// Hash fingerprints the content for idempotent re-indexing.
	Hash string

	// Content is the indexed text.
	Content string
}

// HitDocument is a raw search hit before reconciliation against the
// canonical store.
type HitDocument struct {
	// NodeID is the matched index node id.
	NodeID string

	// DocumentID is the owning canonical document id.
	DocumentID string

	// Content is the indexed text of the node.
	Content string

	// Score is the fused similarity score, higher is more similar.
	Score float64

	// Metadata carries the remaining payload fields.
	Metadata map[string]any
}
