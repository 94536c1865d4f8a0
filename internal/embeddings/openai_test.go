package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type embeddingDatum struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// writeEmbeddings answers an embeddings request with one two-dimensional
// vector per input.
func writeEmbeddings(t *testing.T, w http.ResponseWriter, inputs []string) {
	t.Helper()
	resp := embeddingResponse{Object: "list", Model: DefaultOpenAIModel}
	for i := range inputs {
		resp.Data = append(resp.Data, embeddingDatum{
			Object:    "embedding",
			Index:     i,
			Embedding: []float64{float64(i), 0.5},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func decodeEmbeddingRequest(t *testing.T, r *http.Request) []string {
	t.Helper()
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req.Input
}

func newOpenAIProvider(t *testing.T, baseURL string, batchSize int) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(Config{
		Provider:  TypeOpenAI,
		APIKey:    "sk-test",
		BaseURL:   baseURL,
		BatchSize: batchSize,
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestOpenAIEmbedDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		inputs := decodeEmbeddingRequest(t, r)
		assert.Equal(t, []string{"hello", "world"}, inputs)
		writeEmbeddings(t, w, inputs)
	}))
	defer server.Close()

	p := newOpenAIProvider(t, server.URL, 0)
	vectors, err := p.EmbedDocuments(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0.5}, vectors[0])
	assert.Equal(t, []float32{1, 0.5}, vectors[1])
}

func TestOpenAIEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(t, w, decodeEmbeddingRequest(t, r))
	}))
	defer server.Close()

	p := newOpenAIProvider(t, server.URL, 0)
	vector, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vector)
}

func TestOpenAIBatchesLargeInputs(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputs := decodeEmbeddingRequest(t, r)
		batchSizes = append(batchSizes, len(inputs))
		writeEmbeddings(t, w, inputs)
	}))
	defer server.Close()

	p := newOpenAIProvider(t, server.URL, 2)
	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}

func TestOpenAIRetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		inputs := decodeEmbeddingRequest(t, r)
		if calls == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		writeEmbeddings(t, w, inputs)
	}))
	defer server.Close()

	p := newOpenAIProvider(t, server.URL, 0)
	vectors, err := p.EmbedDocuments(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 2, calls)
}

func TestOpenAIServerErrorIsPermanent(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p := newOpenAIProvider(t, server.URL, 0)
	_, err := p.EmbedDocuments(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 1, calls)
}

func TestOpenAIEmptyInput(t *testing.T) {
	p := newOpenAIProvider(t, "http://localhost:1", 0)
	_, err := p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(Config{Provider: TypeOpenAI}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1.5, -2}, toFloat32([]float64{1.5, -2}))
	assert.Empty(t, toFloat32(nil))
}
