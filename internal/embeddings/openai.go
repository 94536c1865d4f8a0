package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIProvider generates embeddings through the OpenAI API or any
// OpenAI-compatible endpoint. Requests are batched, and rate-limit errors
// retry with exponential backoff; all other API errors fail immediately.
type OpenAIProvider struct {
	client    openai.Client
	config    Config
	logger    *zap.Logger
	metrics   *Metrics
	dimension int
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings API.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) (*OpenAIProvider, error) {
	cfg.ApplyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("embeddings.openai")

	// Retry policy lives in embedBatchWithRetry, so the SDK's own retries
	// are disabled to keep 429 handling in one place.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		config:    cfg,
		logger:    logger,
		metrics:   NewMetrics(logger),
		dimension: cfg.Dimension,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts, preserving order.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
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
		batch, err := p.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			genErr = fmt.Errorf("batch %d-%d: %w", i, end, err)
			return nil, genErr
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := p.embedBatchWithRetry(ctx, []string{text})
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

// embedBatchWithRetry embeds one batch, retrying rate-limit errors with
// exponential backoff. Other errors are permanent.
func (p *OpenAIProvider) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:          openai.EmbeddingModel(p.config.Model),
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			if isRateLimitError(err) {
				p.logger.Debug("rate limited, retrying", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: %d inputs but %d embeddings returned",
				ErrEmbeddingFailed, len(texts), len(resp.Data)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, ErrEmbeddingFailed) {
			return nil, err
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %v", classifyStatus(apiErr.StatusCode), err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the client holds no persistent connection.
func (p *OpenAIProvider) Close() error {
	return nil
}

// isRateLimitError checks for HTTP 429.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors to the float32 the vector
// backends store.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
