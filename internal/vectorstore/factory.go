package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
)

// Config selects and configures the vector backend.
type Config struct {
	// Provider is the default backend for datasets without a persisted
	// index struct: sqlite, qdrant or chromem.
	Provider string

	SQLite  SQLiteConfig
	Qdrant  QdrantConfig
	Chromem ChromemConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = TypeSQLite
	}
	c.SQLite.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// Validate validates the configuration for the selected provider.
func (c Config) Validate() error {
	switch c.Provider {
	case TypeSQLite:
		return c.SQLite.Validate()
	case TypeQdrant:
		return c.Qdrant.Validate()
	case TypeChromem:
		return c.Chromem.Validate()
	default:
		return fmt.Errorf("%w: unsupported vectorstore provider: %s", ErrInvalidConfig, c.Provider)
	}
}

// IndexStructPersister persists a resolved collection binding back onto the
// dataset row. *dataset.Store satisfies it.
type IndexStructPersister interface {
	UpdateDatasetIndexStruct(ctx context.Context, datasetID, indexStruct string) error
}

// Factory resolves a dataset to its vector backend.
//
// Resolution honors whatever binding the dataset's index struct already
// records: the persisted class prefix is reused verbatim as the collection
// name, even when it predates the current naming convention, so re-indexing
// is never forced by a convention change. Datasets without a binding get
// the canonical derived name, persisted before first use.
type Factory struct {
	config    Config
	persister IndexStructPersister
	logger    *zap.Logger
}

// NewFactory validates the configuration and returns a Factory.
func NewFactory(config Config, persister IndexStructPersister, logger *zap.Logger) (*Factory, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if persister == nil {
		return nil, fmt.Errorf("%w: index struct persister required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		config:    config,
		persister: persister,
		logger:    logger.Named("vectorstore.factory"),
	}, nil
}

// ForDataset returns the backend bound to the dataset's collection. The
// caller owns the returned store and must Close it.
func (f *Factory) ForDataset(ctx context.Context, ds *dataset.Dataset) (VectorStore, error) {
	provider, collection, persisted, err := f.resolveBinding(ds)
	if err != nil {
		return nil, err
	}

	if !persisted {
		raw, err := json.Marshal(dataset.IndexStruct{
			Type:        provider,
			VectorStore: dataset.VectorStoreInfo{ClassPrefix: collection},
		})
		if err != nil {
			return nil, fmt.Errorf("marshalling index struct: %w", err)
		}
		if err := f.persister.UpdateDatasetIndexStruct(ctx, ds.ID, string(raw)); err != nil {
			return nil, fmt.Errorf("persisting index struct for dataset %s: %w", ds.ID, err)
		}
		f.logger.Info("bound dataset to new collection",
			zap.String("dataset_id", ds.ID),
			zap.String("provider", provider),
			zap.String("collection", collection))
	}

	store, err := f.open(provider, collection)
	if err != nil {
		return nil, err
	}
	return newInstrumentedStore(store), nil
}

// resolveBinding decides provider and collection for a dataset. persisted
// reports whether the binding already lives on the dataset row.
func (f *Factory) resolveBinding(ds *dataset.Dataset) (provider, collection string, persisted bool, err error) {
	is, err := ds.IndexStructDict()
	if err != nil {
		return "", "", false, fmt.Errorf("parsing index struct for dataset %s: %w", ds.ID, err)
	}

	if is != nil && is.VectorStore.ClassPrefix != "" {
		provider = is.Type
		if provider == "" {
			provider = f.config.Provider
		}
		return provider, is.VectorStore.ClassPrefix, true, nil
	}
	return f.config.Provider, GenerateCollectionName(ds.ID), false, nil
}

func (f *Factory) open(provider, collection string) (VectorStore, error) {
	switch provider {
	case TypeSQLite:
		return NewSQLiteStore(f.config.SQLite, collection, f.logger)
	case TypeQdrant:
		return NewQdrantStore(f.config.Qdrant, collection, f.logger)
	case TypeChromem:
		return NewChromemStore(f.config.Chromem, collection, f.logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s", ErrInvalidConfig, provider)
	}
}
