// Package main implements the retrievald CLI: seed a knowledge base,
// index documents and run retrieval queries against it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/retrieval"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "retrievald",
	Short: "Knowledge-base retrieval service CLI",
	Long: `retrievald answers natural-language queries against tenant-owned
datasets: hybrid vector search, metadata filtering and ranked,
deduplicated segment results.

Configuration is read from ~/.config/retrievald/config.yaml, overridden
by RETRIEVALD_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(initDemoCmd)
}

// app bundles the wired service graph behind the CLI commands.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	store    *dataset.Store
	factory  *vectorstore.Factory
	embedder embeddings.Provider
	signer   *dataset.Signer
	service  *retrieval.Service
}

// newApp loads configuration and wires the full retrieval stack.
func newApp() (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	zlog := log.Underlying()

	dbPath, err := config.ExpandPath(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding database path: %w", err)
	}
	store, err := dataset.NewStore(dataset.StoreConfig{
		Path:            dbPath,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening canonical store: %w", err)
	}

	vsConfig, err := vectorConfig(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	factory, err := vectorstore.NewFactory(vsConfig, store, zlog)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vector store factory: %w", err)
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey.Value(),
		BaseURL:  cfg.Embedding.BaseURL,
	}, zlog)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	signer := dataset.NewSigner(
		cfg.Signing.SecretKey.Value(),
		cfg.Signing.BaseURL,
		cfg.Signing.TTL.Duration(),
	)

	service, err := retrieval.NewService(store, factory, embedder, signer, log)
	if err != nil {
		store.Close()
		embedder.Close()
		return nil, fmt.Errorf("creating retrieval service: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		factory:  factory,
		embedder: embedder,
		signer:   signer,
		service:  service,
	}, nil
}

func (a *app) Close() {
	_ = a.embedder.Close()
	_ = a.store.Close()
	_ = a.log.Sync()
}

// vectorConfig maps the loaded configuration onto the vectorstore config,
// expanding embedded-store paths.
func vectorConfig(cfg *config.Config) (vectorstore.Config, error) {
	sqlitePath, err := config.ExpandPath(cfg.Vector.SQLite.Path)
	if err != nil {
		return vectorstore.Config{}, fmt.Errorf("expanding vector sqlite path: %w", err)
	}
	chromemPath, err := config.ExpandPath(cfg.Vector.Chromem.Path)
	if err != nil {
		return vectorstore.Config{}, fmt.Errorf("expanding vector chromem path: %w", err)
	}

	return vectorstore.Config{
		Provider: cfg.Vector.Provider,
		SQLite: vectorstore.SQLiteConfig{
			Path:            sqlitePath,
			MaxOpenConns:    cfg.Vector.SQLite.MaxOpenConns,
			MaxIdleConns:    cfg.Vector.SQLite.MaxIdleConns,
			ConnMaxLifetime: cfg.Vector.SQLite.ConnMaxLifetime.Duration(),
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:           cfg.Vector.Qdrant.Host,
			Port:           cfg.Vector.Qdrant.Port,
			APIKey:         cfg.Vector.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Vector.Qdrant.UseTLS,
			VectorSize:     uint64(cfg.Vector.Qdrant.VectorSize),
			MaxRetries:     cfg.Vector.Qdrant.MaxRetries,
			RetryBackoff:   cfg.Vector.Qdrant.RetryBackoff.Duration(),
			ConnectTimeout: 10 * time.Second,
		},
		Chromem: vectorstore.ChromemConfig{
			Path:     chromemPath,
			Compress: cfg.Vector.Chromem.Compress,
		},
	}, nil
}
