package dataset

import (
	"encoding/json"
	"strings"
	"time"
)

// Doc forms. A document's form decides how raw vector hits map back to
// segments during reconciliation.
const (
	DocFormText        = "text_model"         // flat: one index node per segment
	DocFormQA          = "qa_model"           // flat, segments carry an answer
	DocFormParentChild = "hierarchical_model" // child chunks indexed, parent segment returned
)

// Indexing techniques.
const (
	IndexingTechniqueHighQuality = "high_quality"
	IndexingTechniqueEconomy     = "economy"
)

// Permission describes who may retrieve from a dataset.
type Permission string

const (
	PermissionOnlyMe         Permission = "only_me"
	PermissionAllTeamMembers Permission = "all_team_members"
	PermissionPartialMembers Permission = "partial_members"
)

// IndexingStatus values a document moves through during ingestion. Only
// completed documents are retrieval-eligible.
const (
	IndexingStatusWaiting   = "waiting"
	IndexingStatusParsing   = "parsing"
	IndexingStatusCleaning  = "cleaning"
	IndexingStatusSplitting = "splitting"
	IndexingStatusIndexing  = "indexing"
	IndexingStatusCompleted = "completed"
	IndexingStatusError     = "error"
)

// Role is a tenant-account role.
type Role string

const (
	RoleOwner           Role = "owner"
	RoleAdmin           Role = "admin"
	RoleEditor          Role = "editor"
	RoleNormal          Role = "normal"
	RoleDatasetOperator Role = "dataset_operator"
)

// IsPrivileged reports whether the role bypasses per-dataset visibility
// scoping (tenant ownership is still required).
func (r Role) IsPrivileged() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Account is the explicit principal threaded through retrieval calls.
type Account struct {
	ID       string
	Name     string
	TenantID string
	Role     Role
}

// Dataset is a tenant-owned container of documents.
type Dataset struct {
	ID                string
	TenantID          string
	Name              string
	Description       string
	Permission        Permission
	DataSourceType    string
	IndexingTechnique string
	DocForm           string
	// IndexStruct is an opaque JSON blob identifying the vector-backend
	// collection, e.g. {"type":"qdrant","vector_store":{"class_prefix":"..."}}.
	// Empty until the dataset's index is first provisioned.
	IndexStruct string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IndexStruct is the parsed form of Dataset.IndexStruct.
type IndexStruct struct {
	Type        string          `json:"type"`
	VectorStore VectorStoreInfo `json:"vector_store"`
}

// VectorStoreInfo carries the backend collection identification.
type VectorStoreInfo struct {
	ClassPrefix string `json:"class_prefix"`
}

// IndexStructDict parses the dataset's index struct. Returns nil when the
// dataset has no provisioned index yet.
func (d *Dataset) IndexStructDict() (*IndexStruct, error) {
	if strings.TrimSpace(d.IndexStruct) == "" {
		return nil, nil
	}
	var is IndexStruct
	if err := json.Unmarshal([]byte(d.IndexStruct), &is); err != nil {
		return nil, err
	}
	return &is, nil
}

// Document is a canonical ingested document.
type Document struct {
	ID             string
	TenantID       string
	DatasetID      string
	Name           string
	DataSourceType string
	DocForm        string
	DocMetadata    map[string]any
	WordCount      int
	IndexingStatus string
	Enabled        bool
	Archived       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RetrievalEligible reports whether the document may be served.
func (d *Document) RetrievalEligible() bool {
	return d.IndexingStatus == IndexingStatusCompleted && d.Enabled && !d.Archived
}

// Segment is the atomic retrievable unit of text.
type Segment struct {
	ID            string
	TenantID      string
	DatasetID     string
	DocumentID    string
	Position      int
	Content       string
	Answer        string
	WordCount     int
	Tokens        int
	IndexNodeID   string
	IndexNodeHash string
	HitCount      int
	Enabled       bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChildChunk is an independently indexed piece of a hierarchical segment.
type ChildChunk struct {
	ID            string
	TenantID      string
	DatasetID     string
	DocumentID    string
	SegmentID     string
	Position      int
	Content       string
	WordCount     int
	IndexNodeID   string
	IndexNodeHash string
	CreatedAt     time.Time
}

// PermissionGrant is an explicit per-account grant on a partial_members
// dataset.
type PermissionGrant struct {
	ID        string
	DatasetID string
	AccountID string
	TenantID  string
}

// Query records one retrieval query against a dataset.
type Query struct {
	ID        string
	DatasetID string
	Content   string
	Source    string
	CreatedBy string
	CreatedAt time.Time
}
