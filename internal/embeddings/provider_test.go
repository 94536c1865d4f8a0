package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{APIKey: "sk-test"}
	cfg.ApplyDefaults()
	assert.Equal(t, TypeOpenAI, cfg.Provider)
	assert.Equal(t, DefaultOpenAIModel, cfg.Model)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, 1536, cfg.Dimension)

	cfg = Config{Provider: TypeTEI, BaseURL: "http://localhost:8080"}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultTEIModel, cfg.Model)
	assert.Equal(t, 384, cfg.Dimension)

	cfg = Config{Provider: TypeTEI, BaseURL: "http://localhost:8080", Dimension: 768}
	cfg.ApplyDefaults()
	assert.Equal(t, 768, cfg.Dimension)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantErr    bool
		errMessage string
	}{
		{
			name:    "valid openai",
			cfg:     Config{Provider: TypeOpenAI, APIKey: "sk-test"},
			wantErr: false,
		},
		{
			name:       "openai without api key",
			cfg:        Config{Provider: TypeOpenAI},
			wantErr:    true,
			errMessage: "api key required",
		},
		{
			name:    "valid tei",
			cfg:     Config{Provider: TypeTEI, BaseURL: "http://localhost:8080"},
			wantErr: false,
		},
		{
			name:       "tei without base url",
			cfg:        Config{Provider: TypeTEI},
			wantErr:    true,
			errMessage: "base url required",
		},
		{
			name:       "unknown provider",
			cfg:        Config{Provider: "fastembed"},
			wantErr:    true,
			errMessage: "unknown provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewProviderSelectsBackend(t *testing.T) {
	p, err := NewProvider(Config{Provider: TypeOpenAI, APIKey: "sk-test"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)
	assert.Equal(t, 1536, p.Dimension())
	assert.NoError(t, p.Close())

	p, err = NewProvider(Config{Provider: TypeTEI, BaseURL: "http://localhost:8080"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &TEIProvider{}, p)
	assert.Equal(t, 384, p.Dimension())
	assert.NoError(t, p.Close())

	_, err = NewProvider(Config{Provider: "bedrock"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClassifyStatus(t *testing.T) {
	assert.ErrorIs(t, classifyStatus(401), ErrInvalidConfig)
	assert.ErrorIs(t, classifyStatus(403), ErrInvalidConfig)
	assert.ErrorIs(t, classifyStatus(404), ErrModelNotSupported)
	assert.ErrorIs(t, classifyStatus(429), ErrQuotaExceeded)
	assert.ErrorIs(t, classifyStatus(400), ErrInvalidRequest)
	assert.ErrorIs(t, classifyStatus(413), ErrInvalidRequest)
	assert.ErrorIs(t, classifyStatus(500), ErrEmbeddingFailed)
}

func TestModelDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-ada-002", 1536},
		{"text-embedding-3-large", 3072},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"Alibaba-NLP/gte-base-en-v1.5", 768},
		{"BAAI/bge-small-en-v1.5", 384},
		{"all-MiniLM-L6-v2", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, modelDimension(tt.model))
		})
	}
}
