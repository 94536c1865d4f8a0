package embeddings

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

// Provider types.
const (
	TypeOpenAI = "openai"
	TypeTEI    = "tei"
)

// Defaults.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultTEIModel    = "BAAI/bge-small-en-v1.5"

	// DefaultBatchSize balances requests-per-minute against
	// tokens-per-minute rate limits. OpenAI accepts up to 2048 inputs per
	// request, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

var (
	// ErrInvalidConfig indicates invalid configuration, including
	// credentials the provider rejects at request time.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrQuotaExceeded indicates the provider rate limit or quota is
	// exhausted and retries did not recover.
	ErrQuotaExceeded = errors.New("embedding provider quota exceeded")

	// ErrModelNotSupported indicates the configured model is unknown to
	// the provider.
	ErrModelNotSupported = errors.New("embedding model not supported")

	// ErrInvalidRequest indicates the provider rejected the request as
	// malformed.
	ErrInvalidRequest = errors.New("invalid embedding request")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "openai" or "tei".
	Provider string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates against OpenAI. Unused by TEI.
	APIKey string

	// BaseURL is the TEI server URL, or an override for OpenAI-compatible
	// endpoints. Required for TEI.
	BaseURL string

	// BatchSize is the maximum number of texts per embed request.
	BatchSize int

	// Dimension overrides the detected embedding dimension. Needed only
	// for models the detection table does not know.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = TypeOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case TypeTEI:
			c.Model = DefaultTEIModel
		default:
			c.Model = DefaultOpenAIModel
		}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Dimension <= 0 {
		c.Dimension = modelDimension(c.Model)
	}
}

// Validate validates the configuration for the selected provider.
func (c Config) Validate() error {
	switch c.Provider {
	case TypeOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("%w: api key required for openai provider", ErrInvalidConfig)
		}
	case TypeTEI:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base url required for tei provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case TypeOpenAI:
		return NewOpenAIProvider(cfg, logger)
	case TypeTEI:
		return NewTEIProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// classifyStatus maps a provider HTTP status to the error taxonomy. The
// caller keeps the status and body in the wrapping message.
func classifyStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidConfig
	case http.StatusNotFound:
		return ErrModelNotSupported
	case http.StatusTooManyRequests:
		return ErrQuotaExceeded
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	default:
		return ErrEmbeddingFailed
	}
}

// modelDimension returns the embedding dimension for a model name. Known
// models match exactly; otherwise common naming patterns decide, falling
// back to 384 (bge-small and friends).
func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}
