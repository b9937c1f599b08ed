package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func TestBuildFilterEmpty(t *testing.T) {
	assert.Nil(t, vectorstore.BuildFilter(nil))
	assert.Nil(t, vectorstore.BuildFilter(map[string]any{}))
}

func TestBuildFilterSingleCondition(t *testing.T) {
	f := vectorstore.BuildFilter(map[string]any{"app_id": "demo"})
	eq, ok := f.(vectorstore.Eq)
	require.True(t, ok, "single condition must be a bare Eq, not wrapped")
	assert.Equal(t, "app_id", eq.Field)
	assert.Equal(t, "demo", eq.Value)
}

func TestBuildFilterMultipleConditionsAreExplicitAnd(t *testing.T) {
	f := vectorstore.BuildFilter(map[string]any{
		"lang":   "en",
		"app_id": "demo",
		"year":   2024,
	})
	and, ok := f.(vectorstore.And)
	require.True(t, ok, "multiple conditions must be an explicit And node")
	require.Len(t, and.Filters, 3)

	// Children are ordered by key for deterministic compilation.
	fields := make([]string, len(and.Filters))
	for i, child := range and.Filters {
		eq, ok := child.(vectorstore.Eq)
		require.True(t, ok)
		fields[i] = eq.Field
	}
	assert.Equal(t, []string{"app_id", "lang", "year"}, fields)
}

func TestFlattenEq(t *testing.T) {
	assert.Nil(t, vectorstore.FlattenEq(nil))

	leaves := vectorstore.FlattenEq(vectorstore.BuildFilter(map[string]any{
		"a": "1",
		"b": "2",
	}))
	require.Len(t, leaves, 2)
	assert.Equal(t, "a", leaves[0].Field)
	assert.Equal(t, "b", leaves[1].Field)

	nested := vectorstore.And{Filters: []vectorstore.Filter{
		vectorstore.Eq{Field: "x", Value: 1},
		vectorstore.And{Filters: []vectorstore.Filter{
			vectorstore.Eq{Field: "y", Value: true},
		}},
	}}
	leaves = vectorstore.FlattenEq(nested)
	require.Len(t, leaves, 2)
	assert.Equal(t, "y", leaves[1].Field)
}
