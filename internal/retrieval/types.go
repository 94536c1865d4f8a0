package retrieval

import (
	"github.com/fyrsmithlabs/retrievald/internal/dataset"
)

// Defaults for RetrievalSetting. TopK defaults deliberately small; callers
// wanting more context pass their own value.
const (
	DefaultTopK           = 2
	DefaultScoreThreshold = 0.0

	// MaxQueryLength is the longest accepted query, in runes.
	MaxQueryLength = 500
)

// querySource tags history rows written by Retrieve.
const querySource = "hit_testing"

// RetrievalSetting tunes one retrieval call.
type RetrievalSetting struct {
	// TopK is the maximum number of raw hits requested from the vector
	// backend. Zero means DefaultTopK; negative is rejected.
	TopK int `json:"top_k"`

	// ScoreThreshold is a strict lower bound: hits must score strictly
	// greater to be retained.
	ScoreThreshold float64 `json:"score_threshold"`
}

// RetrieveRequest is the single inbound operation of the retrieval service.
type RetrieveRequest struct {
	DatasetID string
	Query     string
	Account   dataset.Account
	Setting   RetrievalSetting

	// MetadataCondition restricts retrieval to documents matching the
	// structured filter. Nil means unrestricted.
	MetadataCondition *dataset.MetadataCondition
}

// Result is one ranked retrieval record in the external schema.
type Result struct {
	Score    float64        `json:"score"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata is the metadata block attached to every result record.
type ResultMetadata struct {
	Source               string            `json:"_source"`
	DatasetID            string            `json:"dataset_id"`
	DatasetName          string            `json:"dataset_name"`
	DocumentID           string            `json:"document_id"`
	DocumentName         string            `json:"document_name"`
	DocumentDataSource   string            `json:"document_data_source_type"`
	SegmentID            string            `json:"segment_id"`
	RetrieverFrom        string            `json:"retriever_from"`
	SegmentHitCount      int               `json:"segment_hit_count"`
	SegmentWordCount     int               `json:"segment_word_count"`
	SegmentPosition      int               `json:"segment_position"`
	SegmentIndexNodeHash string            `json:"segment_index_node_hash"`
	DocMetadata          map[string]any    `json:"doc_metadata,omitempty"`
	ChildChunks          []ChildChunkEntry `json:"child_chunks,omitempty"`
	Position             int               `json:"position"`
}

// ChildChunkEntry is one matched child chunk of a hierarchical result.
type ChildChunkEntry struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// record is one reconciled retrieval unit, pre-formatting. For
// hierarchical matches score is the max across the matched child chunks.
type record struct {
	document *dataset.Document
	segment  *dataset.Segment
	children []childHit
	score    float64
}

// childHit pairs a matched child chunk with its raw hit score.
type childHit struct {
	chunk *dataset.ChildChunk
	score float64
}
