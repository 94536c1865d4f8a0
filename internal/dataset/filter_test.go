package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filterFixture seeds one dataset with documents covering the metadata
// shapes the compiler has to handle, plus decoys that must never match.
type filterFixture struct {
	store   *Store
	dataset *Dataset
	legal   *Document // {"category":"legal","year":2021,"note":"save 100% today"}
	tech    *Document // {"category":"technical","year":2024,"note":"100x faster"}
	noMeta  *Document // no metadata at all
}

func newFilterFixture(t *testing.T) *filterFixture {
	t.Helper()
	s := newTestStore(t)
	ds := seedDataset(t, s, &Dataset{Name: "filter-ds"})

	legal := seedDocument(t, s, &Document{
		DatasetID: ds.ID,
		Name:      "contract.pdf",
		Enabled:   true,
		DocMetadata: map[string]any{
			"category": "legal",
			"year":     2021,
			"note":     "save 100% today",
		},
	})
	tech := seedDocument(t, s, &Document{
		DatasetID: ds.ID,
		Name:      "rfc.md",
		Enabled:   true,
		DocMetadata: map[string]any{
			"category": "technical",
			"year":     2024,
			"note":     "100x faster",
		},
	})
	noMeta := seedDocument(t, s, &Document{
		DatasetID: ds.ID,
		Name:      "plain.txt",
		Enabled:   true,
	})

	// Decoys: matching metadata but not serving, or in another dataset.
	seedDocument(t, s, &Document{
		DatasetID:   ds.ID,
		Name:        "disabled.pdf",
		Enabled:     false,
		DocMetadata: map[string]any{"category": "legal"},
	})
	other := seedDataset(t, s, &Dataset{Name: "other-ds"})
	seedDocument(t, s, &Document{
		DatasetID:   other.ID,
		Name:        "foreign.pdf",
		Enabled:     true,
		DocMetadata: map[string]any{"category": "legal"},
	})

	return &filterFixture{store: s, dataset: ds, legal: legal, tech: tech, noMeta: noMeta}
}

func TestFilterDocumentIDsOperators(t *testing.T) {
	fx := newFilterFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cond MetadataCondition
		want func(*filterFixture) []string
	}{
		{
			name: "contains",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpContains, Value: "leg"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "not contains skips documents without the field",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpNotContains, Value: "leg"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "start with",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpStartWith, Value: "tech"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "end with",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpEndWith, Value: "gal"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "equal string",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpEqual, Value: "legal"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "is alias of equal",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpIs, Value: "technical"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "is not",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpIsNot, Value: "legal"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "equal number",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "year", ComparisonOperator: OpEqual, Value: 2021},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "empty matches missing field",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpEmpty},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.noMeta.ID} },
		},
		{
			name: "not empty",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpNotEmpty},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID, fx.tech.ID} },
		},
		{
			name: "before",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "year", ComparisonOperator: OpBefore, Value: 2022},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "after",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "year", ComparisonOperator: OpAfter, Value: 2022},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "less or equal includes boundary",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "year", ComparisonOperator: OpLessOrEqual, Value: 2021},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "greater or equal includes boundary",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "year", ComparisonOperator: OpGreaterOrEqualAlt, Value: 2024},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "percent in value is literal",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "note", ComparisonOperator: OpContains, Value: "100%"},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID} },
		},
		{
			name: "default logical operator is or",
			cond: MetadataCondition{Conditions: []FilterCondition{
				{Name: "category", ComparisonOperator: OpEqual, Value: "legal"},
				{Name: "year", ComparisonOperator: OpEqual, Value: 2024},
			}},
			want: func(fx *filterFixture) []string { return []string{fx.legal.ID, fx.tech.ID} },
		},
		{
			name: "and narrows",
			cond: MetadataCondition{
				LogicalOperator: LogicalAnd,
				Conditions: []FilterCondition{
					{Name: "category", ComparisonOperator: OpContains, Value: "tech"},
					{Name: "year", ComparisonOperator: OpAfter, Value: 2022},
				},
			},
			want: func(fx *filterFixture) []string { return []string{fx.tech.ID} },
		},
		{
			name: "and can match nothing",
			cond: MetadataCondition{
				LogicalOperator: LogicalAnd,
				Conditions: []FilterCondition{
					{Name: "category", ComparisonOperator: OpContains, Value: "tech"},
					{Name: "year", ComparisonOperator: OpBefore, Value: 2022},
				},
			},
			want: func(fx *filterFixture) []string { return []string{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &tt.cond)
			require.NoError(t, err)
			require.NotNil(t, ids, "a non-nil condition must yield a non-nil slice")
			assert.ElementsMatch(t, tt.want(fx), ids)
		})
	}
}

func TestFilterDocumentIDsNilCondition(t *testing.T) {
	fx := newFilterFixture(t)

	ids, err := fx.store.FilterDocumentIDs(context.Background(), fx.dataset.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, ids, "nil condition means unrestricted")
}

func TestFilterDocumentIDsNoConditions(t *testing.T) {
	fx := newFilterFixture(t)

	// A present condition with an empty list matches every serving document.
	ids, err := fx.store.FilterDocumentIDs(context.Background(), fx.dataset.ID, &MetadataCondition{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fx.legal.ID, fx.tech.ID, fx.noMeta.ID}, ids)
}

func TestFilterDocumentIDsRejectsUnknownOperators(t *testing.T) {
	fx := newFilterFixture(t)
	ctx := context.Background()

	_, err := fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &MetadataCondition{
		Conditions: []FilterCondition{
			{Name: "category", ComparisonOperator: "fuzzy-match", Value: "legal"},
		},
	})
	assert.ErrorIs(t, err, ErrUnknownComparisonOperator)

	_, err = fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &MetadataCondition{
		LogicalOperator: "xor",
		Conditions: []FilterCondition{
			{Name: "category", ComparisonOperator: OpEqual, Value: "legal"},
		},
	})
	assert.ErrorIs(t, err, ErrUnknownLogicalOperator)
}

func TestFilterDocumentIDsRejectsInvalidConditions(t *testing.T) {
	fx := newFilterFixture(t)
	ctx := context.Background()

	_, err := fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &MetadataCondition{
		Conditions: []FilterCondition{
			{Name: "", ComparisonOperator: OpEqual, Value: "legal"},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidCondition)

	_, err = fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &MetadataCondition{
		Conditions: []FilterCondition{
			{Name: "category", ComparisonOperator: OpContains, Value: 42},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidCondition)

	_, err = fx.store.FilterDocumentIDs(ctx, fx.dataset.ID, &MetadataCondition{
		Conditions: []FilterCondition{
			{Name: "year", ComparisonOperator: OpAfter, Value: []string{"2022"}},
		},
	})
	assert.ErrorIs(t, err, ErrInvalidCondition)
}
