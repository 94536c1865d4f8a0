// Package config provides configuration loading for retrievald.
//
// Configuration is layered: hardcoded defaults, then a YAML file, then
// environment variables (RETRIEVALD_ prefix). Each subsystem section is a
// plain struct here; domain packages own their richer config types and the
// wiring layer maps between them.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/logging"
)

// Config holds the complete retrievald configuration.
type Config struct {
	Logging   logging.Config  `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Vector    VectorConfig    `koanf:"vector"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Signing   SigningConfig   `koanf:"signing"`
}

// DatabaseConfig holds the canonical relational store configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file. The directory is created if missing.
	Path string `koanf:"path"`
	// Pool sizing. MinConns must not exceed MaxConns.
	MaxOpenConns    int      `koanf:"max_open_conns"`
	MaxIdleConns    int      `koanf:"max_idle_conns"`
	ConnMaxLifetime Duration `koanf:"conn_max_lifetime"`
}

// VectorConfig selects and configures the vector backend.
type VectorConfig struct {
	// Provider is the backend technology: "sqlite", "qdrant" or "chromem".
	Provider string              `koanf:"provider"`
	SQLite   SQLiteVectorConfig  `koanf:"sqlite"`
	Qdrant   QdrantVectorConfig  `koanf:"qdrant"`
	Chromem  ChromemVectorConfig `koanf:"chromem"`
}

// SQLiteVectorConfig configures the SQL-based vector backend.
type SQLiteVectorConfig struct {
	Path            string   `koanf:"path"`
	MaxOpenConns    int      `koanf:"max_open_conns"`
	MaxIdleConns    int      `koanf:"max_idle_conns"`
	ConnMaxLifetime Duration `koanf:"conn_max_lifetime"`
}

// QdrantVectorConfig configures the Qdrant gRPC backend.
type QdrantVectorConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	APIKey       Secret   `koanf:"api_key"`
	UseTLS       bool     `koanf:"use_tls"`
	VectorSize   int      `koanf:"vector_size"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// ChromemVectorConfig configures the embedded chromem backend.
type ChromemVectorConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingConfig configures the query-embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "tei".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is the TEI endpoint (TEI provider only).
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`
}

// SigningConfig configures signed file-preview URL generation.
type SigningConfig struct {
	SecretKey Secret   `koanf:"secret_key"`
	BaseURL   string   `koanf:"base_url"`
	TTL       Duration `koanf:"ttl"`
}

// NewDefaultConfig returns config with working local defaults: embedded
// stores under the user data dir, no external services required.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: *logging.NewDefaultConfig(),
		Database: DatabaseConfig{
			Path:            "~/.local/share/retrievald/retrievald.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(time.Hour),
		},
		Vector: VectorConfig{
			Provider: "sqlite",
			SQLite: SQLiteVectorConfig{
				Path:            "~/.local/share/retrievald/vectors.db",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration(time.Hour),
			},
			Qdrant: QdrantVectorConfig{
				Host:         "localhost",
				Port:         6334,
				VectorSize:   1536,
				MaxRetries:   3,
				RetryBackoff: Duration(100 * time.Millisecond),
			},
			Chromem: ChromemVectorConfig{
				Path:       "~/.local/share/retrievald/chromem",
				VectorSize: 1536,
			},
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Signing: SigningConfig{
			BaseURL: "http://localhost:5001",
			TTL:     Duration(5 * time.Minute),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database max_idle_conns (%d) must not exceed max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Vector.Provider {
	case "sqlite":
		if c.Vector.SQLite.Path == "" {
			return fmt.Errorf("vector sqlite path is required")
		}
	case "qdrant":
		if c.Vector.Qdrant.Host == "" {
			return fmt.Errorf("vector qdrant host is required")
		}
		if c.Vector.Qdrant.Port < 1 || c.Vector.Qdrant.Port > 65535 {
			return fmt.Errorf("vector qdrant port must be 1-65535, got %d", c.Vector.Qdrant.Port)
		}
	case "chromem":
		if c.Vector.Chromem.Path == "" {
			return fmt.Errorf("vector chromem path is required")
		}
	default:
		return fmt.Errorf("unsupported vector provider: %s (supported: sqlite, qdrant, chromem)", c.Vector.Provider)
	}

	switch c.Embedding.Provider {
	case "openai", "tei":
	default:
		return fmt.Errorf("unsupported embedding provider: %s (supported: openai, tei)", c.Embedding.Provider)
	}

	if c.Signing.TTL.Duration() <= 0 {
		return fmt.Errorf("signing ttl must be positive")
	}

	return nil
}
