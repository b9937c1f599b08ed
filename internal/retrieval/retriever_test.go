package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

type stubStore struct {
	vectorstore.Store
	lastReq vectorstore.QueryRequest
	results []vectorstore.QueryResult
	err     error
}

func (s *stubStore) Query(_ context.Context, req vectorstore.QueryRequest) ([]vectorstore.QueryResult, error) {
	s.lastReq = req
	return s.results, s.err
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestQueryValidation(t *testing.T) {
	r, err := New(&stubStore{}, nil)
	require.NoError(t, err)

	_, err = r.Contexts(context.Background(), Query{})
	assert.Error(t, err, "neither text nor vector")

	_, err = r.Contexts(context.Background(), Query{Text: "q", TopK: -1})
	assert.Error(t, err)
}

func TestContexts(t *testing.T) {
	store := &stubStore{results: []vectorstore.QueryResult{
		{Context: "first", Score: 0.9},
		{Context: "second", Score: 0.4},
	}}
	r, err := New(store, nil)
	require.NoError(t, err)

	contexts, err := r.Contexts(context.Background(), Query{Text: "what is first?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, contexts)

	assert.Equal(t, DefaultTopK, store.lastReq.NResults, "zero top-k uses the default")
	assert.False(t, store.lastReq.Citations)
}

func TestContextsPassesFilterAndTopK(t *testing.T) {
	store := &stubStore{}
	r, err := New(store, nil)
	require.NoError(t, err)

	where := map[string]any{"app_id": "demo"}
	_, err = r.Contexts(context.Background(), Query{Text: "q", TopK: 7, Where: where})
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastReq.NResults)
	assert.Equal(t, where, store.lastReq.Where)
}

func TestContextsRawVectorSkipsEmbedding(t *testing.T) {
	store := &stubStore{}
	r, err := New(store, nil)
	require.NoError(t, err)

	vec := []float32{0.1, 0.2, 0.3}
	_, err = r.Contexts(context.Background(), Query{Vector: vec})
	require.NoError(t, err)
	assert.Equal(t, vec, store.lastReq.Vector)
	assert.Empty(t, store.lastReq.Text)
}

func TestCitations(t *testing.T) {
	store := &stubStore{results: []vectorstore.QueryResult{
		{
			Context: "paris is the capital",
			Metadata: map[string]any{
				vectorstore.MetadataURL:   "https://example.com/france",
				vectorstore.MetadataDocID: "doc-1",
			},
		},
	}}
	r, err := New(store, nil)
	require.NoError(t, err)

	citations, err := r.Citations(context.Background(), Query{Text: "capital of france"})
	require.NoError(t, err)
	require.Len(t, citations, 1)
	assert.Equal(t, "paris is the capital", citations[0].Context)
	assert.Equal(t, "https://example.com/france", citations[0].SourceID)
	assert.Equal(t, "doc-1", citations[0].DocID)

	assert.True(t, store.lastReq.Citations)
}

func TestCitationsMissingMetadata(t *testing.T) {
	store := &stubStore{results: []vectorstore.QueryResult{
		{Context: "orphaned text", Metadata: map[string]any{}},
	}}
	r, err := New(store, nil)
	require.NoError(t, err)

	_, err = r.Citations(context.Background(), Query{Text: "q"})
	assert.ErrorIs(t, err, vectorstore.ErrMissingCitationMetadata)
}
