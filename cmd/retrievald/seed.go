package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

var (
	addDatasetID string
	addDocName   string
	addTenantID  string
	addAccountID string
	addMetadata  []string
	addCreate    bool
)

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Index a document into a dataset",
	Long: `Index a document into a dataset. Content is read from the file
argument, or from stdin when the argument is "-" or absent. Paragraphs
separated by blank lines become individual segments.

Examples:
  retrievald add --dataset <id> --name handbook.md handbook.md
  cat notes.txt | retrievald add --dataset <id> --name notes --metadata category=hr -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

var initDemoCmd = &cobra.Command{
	Use:   "init-demo",
	Short: "Create demo datasets with indexed sample content",
	Long: `Create two small demo datasets — one flat, one parent-child — seeded
with sample documents and ready to query. Prints the dataset ids.`,
	RunE: runInitDemo,
}

func init() {
	addCmd.Flags().StringVar(&addDatasetID, "dataset", "", "target dataset id (required)")
	addCmd.Flags().StringVar(&addDocName, "name", "", "document name (required)")
	addCmd.Flags().StringVar(&addTenantID, "tenant", "local", "tenant id")
	addCmd.Flags().StringVar(&addAccountID, "account", "local", "account id")
	addCmd.Flags().StringArrayVar(&addMetadata, "metadata", nil, "document metadata as key=value (repeatable)")
	addCmd.Flags().BoolVar(&addCreate, "create", false, "create the dataset if it does not exist")
	_ = addCmd.MarkFlagRequired("dataset")
	_ = addCmd.MarkFlagRequired("name")
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := logging.WithLogger(logging.WithTenantID(cmd.Context(), addTenantID), a.log)

	content, err := readContent(args)
	if err != nil {
		return err
	}
	segments := splitSegments(content)
	if len(segments) == 0 {
		return fmt.Errorf("no content to index")
	}

	metadata, err := parseMetadata(addMetadata)
	if err != nil {
		return err
	}

	ds, err := a.store.GetDataset(ctx, addDatasetID)
	if errors.Is(err, dataset.ErrNotFound) && addCreate {
		ds = &dataset.Dataset{
			ID:                addDatasetID,
			TenantID:          addTenantID,
			Name:              addDatasetID,
			Permission:        dataset.PermissionAllTeamMembers,
			IndexingTechnique: dataset.IndexingTechniqueHighQuality,
			DocForm:           dataset.DocFormText,
			CreatedBy:         addAccountID,
		}
		if err := a.store.SaveDataset(ctx, ds); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	doc, segs, err := buildFlatDocument(ds, addDocName, metadata, segments)
	if err != nil {
		return err
	}
	if err := indexFlat(ctx, a, ds, doc, segs); err != nil {
		return err
	}

	fmt.Printf("Indexed %d segments into dataset %s (document %s)\n", len(segs), ds.ID, doc.ID)
	return nil
}

func runInitDemo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := logging.WithLogger(cmd.Context(), a.log)

	flatID, err := seedFlatDemo(ctx, a)
	if err != nil {
		return fmt.Errorf("seeding flat demo: %w", err)
	}
	hierID, err := seedHierarchicalDemo(ctx, a)
	if err != nil {
		return fmt.Errorf("seeding hierarchical demo: %w", err)
	}

	fmt.Printf("Flat demo dataset:        %s\n", flatID)
	fmt.Printf("Hierarchical demo dataset: %s\n", hierID)
	fmt.Println(`Try: retrievald query ` + flatID + ` "how much vacation do I get" --top-k 3`)
	return nil
}

func seedFlatDemo(ctx context.Context, a *app) (string, error) {
	ds := &dataset.Dataset{
		ID:                uuid.NewString(),
		TenantID:          "local",
		Name:              "demo-handbook",
		Permission:        dataset.PermissionAllTeamMembers,
		IndexingTechnique: dataset.IndexingTechniqueHighQuality,
		DocForm:           dataset.DocFormText,
		CreatedBy:         "local",
	}
	if err := a.store.SaveDataset(ctx, ds); err != nil {
		return "", err
	}

	docs := []struct {
		name     string
		metadata map[string]any
		segments []string
	}{
		{
			name:     "vacation-policy.md",
			metadata: map[string]any{"category": "hr"},
			segments: []string{
				"Full-time employees accrue 25 vacation days per year, available from the first day of employment.",
				"Unused vacation days carry over up to a maximum of 10 days into the next calendar year.",
			},
		},
		{
			name:     "expense-policy.md",
			metadata: map[string]any{"category": "finance"},
			segments: []string{
				"Expenses under 50 euros need no prior approval; submit the receipt within 30 days.",
				"Travel bookings above 500 euros require written manager approval before purchase.",
			},
		},
	}

	for _, d := range docs {
		doc, segs, err := buildFlatDocument(ds, d.name, d.metadata, d.segments)
		if err != nil {
			return "", err
		}
		if err := indexFlat(ctx, a, ds, doc, segs); err != nil {
			return "", err
		}
	}
	return ds.ID, nil
}

func seedHierarchicalDemo(ctx context.Context, a *app) (string, error) {
	ds := &dataset.Dataset{
		ID:                uuid.NewString(),
		TenantID:          "local",
		Name:              "demo-guide",
		Permission:        dataset.PermissionAllTeamMembers,
		IndexingTechnique: dataset.IndexingTechniqueHighQuality,
		DocForm:           dataset.DocFormParentChild,
		CreatedBy:         "local",
	}
	if err := a.store.SaveDataset(ctx, ds); err != nil {
		return "", err
	}

	doc := &dataset.Document{
		ID:             uuid.NewString(),
		TenantID:       ds.TenantID,
		DatasetID:      ds.ID,
		Name:           "onboarding-guide.md",
		DataSourceType: "upload_file",
		DocForm:        ds.DocForm,
		IndexingStatus: dataset.IndexingStatusCompleted,
		Enabled:        true,
	}

	parent := "New engineers set up their workstation, get repository access and ship a small change in the first week."
	children := []string{
		"Workstation setup: install the toolchain and clone the main repository.",
		"Request repository access through the access portal; approvals take one business day.",
		"Ship a small, reviewed change before the end of your first week.",
	}

	seg := &dataset.Segment{
		ID:            uuid.NewString(),
		TenantID:      ds.TenantID,
		DatasetID:     ds.ID,
		DocumentID:    doc.ID,
		Position:      1,
		Content:       parent,
		WordCount:     len(strings.Fields(parent)),
		IndexNodeID:   uuid.NewString(),
		IndexNodeHash: nodeHash(parent),
		Enabled:       true,
		Status:        "completed",
	}
	doc.WordCount = seg.WordCount

	nodes := make([]vectorstore.Document, 0, len(children))
	texts := make([]string, 0, len(children))
	chunks := make([]*dataset.ChildChunk, 0, len(children))
	for i, text := range children {
		chunk := &dataset.ChildChunk{
			ID:            uuid.NewString(),
			TenantID:      ds.TenantID,
			DatasetID:     ds.ID,
			DocumentID:    doc.ID,
			SegmentID:     seg.ID,
			Position:      i + 1,
			Content:       text,
			WordCount:     len(strings.Fields(text)),
			IndexNodeID:   uuid.NewString(),
			IndexNodeHash: nodeHash(text),
		}
		chunks = append(chunks, chunk)
		texts = append(texts, text)
		nodes = append(nodes, vectorstore.Document{
			NodeID:     chunk.IndexNodeID,
			DocumentID: doc.ID,
			DatasetID:  ds.ID,
			Hash:       chunk.IndexNodeHash,
			Content:    text,
		})
	}

	vectors, err := a.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return "", err
	}

	store, err := a.factory.ForDataset(ctx, ds)
	if err != nil {
		return "", err
	}
	defer store.Close()
	if err := store.AddTexts(ctx, nodes, vectors); err != nil {
		return "", err
	}

	if err := a.store.SaveDocument(ctx, doc); err != nil {
		return "", err
	}
	if err := a.store.SaveSegment(ctx, seg); err != nil {
		return "", err
	}
	for _, chunk := range chunks {
		if err := a.store.SaveChildChunk(ctx, chunk); err != nil {
			return "", err
		}
	}
	return ds.ID, nil
}

// buildFlatDocument assembles the canonical rows for one flat document.
func buildFlatDocument(ds *dataset.Dataset, name string, metadata map[string]any, contents []string) (*dataset.Document, []*dataset.Segment, error) {
	doc := &dataset.Document{
		ID:             uuid.NewString(),
		TenantID:       ds.TenantID,
		DatasetID:      ds.ID,
		Name:           name,
		DataSourceType: "upload_file",
		DocForm:        ds.DocForm,
		DocMetadata:    metadata,
		IndexingStatus: dataset.IndexingStatusCompleted,
		Enabled:        true,
	}

	segments := make([]*dataset.Segment, 0, len(contents))
	for i, content := range contents {
		words := len(strings.Fields(content))
		doc.WordCount += words
		segments = append(segments, &dataset.Segment{
			ID:            uuid.NewString(),
			TenantID:      ds.TenantID,
			DatasetID:     ds.ID,
			DocumentID:    doc.ID,
			Position:      i + 1,
			Content:       content,
			WordCount:     words,
			IndexNodeID:   uuid.NewString(),
			IndexNodeHash: nodeHash(content),
			Enabled:       true,
			Status:        "completed",
		})
	}
	return doc, segments, nil
}

// indexFlat embeds segment contents, writes the index nodes and persists
// the canonical rows.
func indexFlat(ctx context.Context, a *app, ds *dataset.Dataset, doc *dataset.Document, segments []*dataset.Segment) error {
	texts := make([]string, 0, len(segments))
	nodes := make([]vectorstore.Document, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Content)
		nodes = append(nodes, vectorstore.Document{
			NodeID:     seg.IndexNodeID,
			DocumentID: doc.ID,
			DatasetID:  ds.ID,
			Hash:       seg.IndexNodeHash,
			Content:    seg.Content,
		})
	}

	vectors, err := a.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding segments: %w", err)
	}

	store, err := a.factory.ForDataset(ctx, ds)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.AddTexts(ctx, nodes, vectors); err != nil {
		return fmt.Errorf("indexing segments: %w", err)
	}

	if err := a.store.SaveDocument(ctx, doc); err != nil {
		return err
	}
	for _, seg := range segments {
		if err := a.store.SaveSegment(ctx, seg); err != nil {
			return err
		}
	}

	logging.FromContext(ctx).Info(ctx, "indexed document",
		zap.String("document_id", doc.ID),
		zap.String("document_name", doc.Name),
		zap.Int("segments", len(segments)))
	return nil
}

func readContent(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

// splitSegments splits text into paragraphs on blank lines.
func splitSegments(text string) []string {
	var segments []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			segments = append(segments, block)
		}
	}
	return segments
}

// parseMetadata turns repeated key=value flags into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --metadata %q, want key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func nodeHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
