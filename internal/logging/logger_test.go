package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "defaults are valid",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "console format is valid",
			mutate:    func(c *Config) { c.Format = "console" },
			wantError: false,
		},
		{
			name:      "unknown format",
			mutate:    func(c *Config) { c.Format = "logfmt" },
			wantError: true,
		},
		{
			name:      "negative caller skip",
			mutate:    func(c *Config) { c.Caller.Skip = -1 },
			wantError: true,
		},
		{
			name:      "empty field value",
			mutate:    func(c *Config) { c.Fields = map[string]string{"service": ""} },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLoggerRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestContextFieldsAttached(t *testing.T) {
	logger := NewTestLogger()

	ctx := WithTenantID(context.Background(), "tenant-1")
	ctx = WithDatasetID(ctx, "ds-1")
	ctx = WithRequestID(ctx, "req-1")

	logger.Info(ctx, "retrieval completed", zap.Int("hits", 3))

	entries := logger.FilterMessage("retrieval completed").All()
	require.Len(t, entries, 1)

	got := map[string]string{}
	for _, f := range entries[0].Context {
		if f.Type == zapcore.StringType {
			got[f.Key] = f.String
		}
	}
	assert.Equal(t, "tenant-1", got["tenant_id"])
	assert.Equal(t, "ds-1", got["dataset_id"])
	assert.Equal(t, "req-1", got["request_id"])
}

func TestNamedAndWithProduceChildren(t *testing.T) {
	logger := NewTestLogger()

	child := logger.Named("vectorstore").With(zap.String("provider", "sqlite"))
	child.Info(context.Background(), "adapter ready")

	entries := logger.FilterMessage("adapter ready").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "vectorstore", entries[0].LoggerName)
}

func TestFromContextReturnsNopWhenUnset(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Must not panic.
	logger.Info(context.Background(), "noop")
}
