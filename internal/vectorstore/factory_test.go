package vectorstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
)

type factoryFixture struct {
	store   *dataset.Store
	factory *Factory
	sqlite  SQLiteConfig
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := dataset.NewStore(dataset.StoreConfig{Path: filepath.Join(dir, "meta.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sqliteCfg := SQLiteConfig{Path: filepath.Join(dir, "vectors.db")}
	f, err := NewFactory(Config{
		Provider: TypeSQLite,
		SQLite:   sqliteCfg,
		Chromem:  ChromemConfig{Path: filepath.Join(dir, "chromem")},
	}, store, zap.NewNop())
	require.NoError(t, err)

	return &factoryFixture{store: store, factory: f, sqlite: sqliteCfg}
}

func (fx *factoryFixture) saveDataset(t *testing.T, ds *dataset.Dataset) *dataset.Dataset {
	t.Helper()
	if ds.TenantID == "" {
		ds.TenantID = "tenant-1"
	}
	if ds.Name == "" {
		ds.Name = "kb"
	}
	if ds.Permission == "" {
		ds.Permission = dataset.PermissionAllTeamMembers
	}
	ds.CreatedAt = time.Now().UTC()
	ds.UpdatedAt = ds.CreatedAt
	require.NoError(t, fx.store.SaveDataset(context.Background(), ds))
	return ds
}

func TestFactoryBindsUnboundDataset(t *testing.T) {
	fx := newFactoryFixture(t)
	ctx := context.Background()
	ds := fx.saveDataset(t, &dataset.Dataset{ID: "5f0b814c-91a1-4d54-a1a9-6a8b3f9e2c10"})

	s, err := fx.factory.ForDataset(ctx, ds)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, TypeSQLite, s.Type())

	reloaded, err := fx.store.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"sqlite","vector_store":{"class_prefix":"Vector_index_5f0b814c_91a1_4d54_a1a9_6a8b3f9e2c10_Node"}}`,
		reloaded.IndexStruct)
}

func TestFactoryReusesPersistedBinding(t *testing.T) {
	fx := newFactoryFixture(t)
	ctx := context.Background()

	// The legacy prefix predates the current naming convention and must be
	// reused verbatim, not rewritten.
	legacy := `{"type":"sqlite","vector_store":{"class_prefix":"Legacy_prefix_Node"}}`
	ds := fx.saveDataset(t, &dataset.Dataset{ID: "ds-legacy", IndexStruct: legacy})

	s, err := fx.factory.ForDataset(ctx, ds)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddTexts(ctx,
		[]Document{{NodeID: "n1", DocumentID: "doc-a", Content: "hello"}},
		[][]float32{{1, 0}}))

	reloaded, err := fx.store.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, legacy, reloaded.IndexStruct)

	// The node landed in the legacy collection.
	direct, err := NewSQLiteStore(fx.sqlite, "Legacy_prefix_Node", zap.NewNop())
	require.NoError(t, err)
	defer direct.Close()
	hits, err := direct.SearchByHybrid(ctx, "q", []float32{1, 0}, SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "n1", hits[0].NodeID)
}

func TestFactoryBindingProviderOverridesDefault(t *testing.T) {
	fx := newFactoryFixture(t)
	ds := fx.saveDataset(t, &dataset.Dataset{
		ID:          "ds-chromem",
		IndexStruct: `{"type":"chromem","vector_store":{"class_prefix":"Vector_index_ds_chromem_Node"}}`,
	})

	s, err := fx.factory.ForDataset(context.Background(), ds)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, TypeChromem, s.Type())
}

func TestFactoryBindingWithoutTypeUsesDefaultProvider(t *testing.T) {
	fx := newFactoryFixture(t)
	ds := fx.saveDataset(t, &dataset.Dataset{
		ID:          "ds-untyped",
		IndexStruct: `{"vector_store":{"class_prefix":"Vector_index_ds_untyped_Node"}}`,
	})

	s, err := fx.factory.ForDataset(context.Background(), ds)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, TypeSQLite, s.Type())
}

func TestFactoryRejectsCorruptIndexStruct(t *testing.T) {
	fx := newFactoryFixture(t)
	ds := fx.saveDataset(t, &dataset.Dataset{ID: "ds-corrupt", IndexStruct: "{not json"})

	_, err := fx.factory.ForDataset(context.Background(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ds-corrupt")
}

func TestFactoryRejectsUnsupportedBindingProvider(t *testing.T) {
	fx := newFactoryFixture(t)
	ds := fx.saveDataset(t, &dataset.Dataset{
		ID:          "ds-weaviate",
		IndexStruct: `{"type":"weaviate","vector_store":{"class_prefix":"Node"}}`,
	})

	_, err := fx.factory.ForDataset(context.Background(), ds)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewFactoryValidation(t *testing.T) {
	_, err := NewFactory(Config{Provider: "weaviate"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewFactory(Config{SQLite: SQLiteConfig{Path: "/tmp/v.db"}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
