package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChromemStore(t *testing.T, path, collection string) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{Path: path}, collection, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChromemStoreType(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	assert.Equal(t, TypeChromem, s.Type())
}

func TestChromemConfigValidate(t *testing.T) {
	assert.ErrorIs(t, ChromemConfig{}.Validate(), ErrInvalidConfig)
	assert.NoError(t, ChromemConfig{Path: "/tmp/x"}.Validate())
}

func TestChromemStoreRejectsBadCollectionName(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, "bad name!", zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidCollectionName)
}

func TestChromemStoreSearchOrdersByScore(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	seedNodes(t, s)

	hits, err := s.SearchByHybrid(context.Background(), "refund", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4})
	require.NoError(t, err)

	// n2 and n4 score exactly 0.0 and fall below the default threshold.
	require.Len(t, hits, 2)
	assert.Equal(t, "n1", hits[0].NodeID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "n3", hits[1].NodeID)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-6)

	assert.Equal(t, "doc-a", hits[0].DocumentID)
	assert.Equal(t, "refund policy details", hits[0].Content)
	assert.Equal(t, "ds-1", hits[0].Metadata[payloadDatasetID])
	assert.Equal(t, "h1", hits[0].Metadata[payloadDocHash])
}

func TestChromemStoreTopKTruncates(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	seedNodes(t, s)

	hits, err := s.SearchByHybrid(context.Background(), "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n1", hits[0].NodeID)
}

func TestChromemStoreThresholdIsStrict(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	seedNodes(t, s)
	ctx := context.Background()

	// n1 scores exactly 1.0: a threshold of 1.0 must exclude it too.
	hits, err := s.SearchByHybrid(ctx, "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4, ScoreThreshold: 1.0})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchByHybrid(ctx, "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4, ScoreThreshold: 0.61})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n1", hits[0].NodeID)
}

func TestChromemStoreDocumentIDFilter(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	seedNodes(t, s)
	ctx := context.Background()

	// The restriction is applied after fetching, so n3 must surface even
	// though n1 and n2 outscore or tie it inside the collection.
	hits, err := s.SearchByHybrid(ctx, "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4, DocumentIDs: []string{"doc-b"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n3", hits[0].NodeID)

	hits, err = s.SearchByHybrid(ctx, "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4, DocumentIDs: []string{}})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestChromemStoreEmptyCollection(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")

	hits, err := s.SearchByHybrid(context.Background(), "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 2})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestChromemStoreAddTextsValidation(t *testing.T) {
	s := newTestChromemStore(t, t.TempDir(), "Vector_index_t_Node")
	ctx := context.Background()

	err := s.AddTexts(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)

	err = s.AddTexts(ctx, []Document{{NodeID: "n1", Content: "x"}}, [][]float32{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = s.AddTexts(ctx, []Document{{DocumentID: "doc-a", Content: "x"}},
		[][]float32{{1, 0}})
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestChromemStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := newTestChromemStore(t, dir, "Vector_index_t_Node")
	seedNodes(t, s)
	require.NoError(t, s.Close())

	reopened := newTestChromemStore(t, dir, "Vector_index_t_Node")
	hits, err := reopened.SearchByHybrid(context.Background(), "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "n1", hits[0].NodeID)
}

func TestChromemStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s := newTestChromemStore(t, dir, "Vector_index_t_Node")
	seedNodes(t, s)
	require.NoError(t, s.Delete(context.Background()))

	// A fresh handle on the same directory sees an empty collection.
	reopened := newTestChromemStore(t, dir, "Vector_index_t_Node")
	hits, err := reopened.SearchByHybrid(context.Background(), "q", []float32{1, 0, 0, 0},
		SearchOptions{TopK: 4})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
