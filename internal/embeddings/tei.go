package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TEIProvider generates embeddings through a text-embeddings-inference
// server. TEI needs no API key; the model is chosen when the server starts,
// so the configured model name only feeds dimension detection and metrics.
type TEIProvider struct {
	config    Config
	client    *http.Client
	logger    *zap.Logger
	metrics   *Metrics
	dimension int
}

var _ Provider = (*TEIProvider)(nil)

// NewTEIProvider creates a provider backed by a TEI server.
func NewTEIProvider(cfg Config, logger *zap.Logger) (*TEIProvider, error) {
	cfg.ApplyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("embeddings.tei")

	return &TEIProvider{
		config:    cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
		metrics:   NewMetrics(logger),
		dimension: cfg.Dimension,
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint. Inputs is a
// single string or a slice of strings.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts, preserving order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += p.config.BatchSize {
		end := min(i+p.config.BatchSize, len(texts))
		batch, err := p.embed(ctx, texts[i:end])
		if err != nil {
			genErr = fmt.Errorf("batch %d-%d: %w", i, end, err)
			return nil, genErr
		}
		if len(batch) != end-i {
			genErr = fmt.Errorf("%w: %d inputs but %d embeddings returned",
				ErrEmbeddingFailed, end-i, len(batch))
			return nil, genErr
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := p.embed(ctx, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}
	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}
	return vectors[0], nil
}

// embed posts one request to the TEI embed endpoint. TEI answers both
// single and batched inputs with a list of vectors.
func (p *TEIProvider) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/embed"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", classifyStatus(resp.StatusCode), resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; TEI is stateless HTTP.
func (p *TEIProvider) Close() error {
	return nil
}
