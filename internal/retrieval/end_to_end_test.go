package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/ingest"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// hashEmbedder maps equal texts to equal unit vectors, so querying with a
// stored chunk's exact text ranks that chunk first.
type hashEmbedder struct{ dim int }

func (e hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e hashEmbedder) Dimension() int { return e.dim }

func (e hashEmbedder) embed(text string) []float32 {
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	vec := make([]float32, e.dim)
	var sumSq float64
	for i := range vec {
		vec[i] = float32((hash+i*7)%100+1) / 100.0
		sumSq += float64(vec[i]) * float64(vec[i])
	}
	var norm float64 = 1
	for i := 0; i < 20; i++ {
		norm = (norm + sumSq/norm) / 2
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Two documents go in through the ingestion pipeline; a citation query for
// one of them must come back as the exact (context, source, doc id) triple.
func TestIngestThenCiteRoundTrip(t *testing.T) {
	ctx := context.Background()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx, hashEmbedder{dim: 8}))

	dir := t.TempDir()
	parisPath := filepath.Join(dir, "paris.txt")
	lyonPath := filepath.Join(dir, "lyon.txt")
	parisText := "Paris is the capital of France."
	lyonText := "Lyon is known for its gastronomy."
	require.NoError(t, os.WriteFile(parisPath, []byte(parisText), 0o644))
	require.NoError(t, os.WriteFile(lyonPath, []byte(lyonText), 0o644))

	chunker, err := ingest.NewRecursiveChunker(200, 0)
	require.NoError(t, err)
	pipe, err := ingest.New(store, ingest.Options{Chunker: chunker})
	require.NoError(t, err)

	results, err := pipe.Ingest(ctx, []ingest.Source{
		{Type: ingest.SourceFile, Value: parisPath},
		{Type: ingest.SourceFile, Value: lyonPath},
	})
	require.NoError(t, err)
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, 1, res.Added)
	}

	r, err := New(store, nil)
	require.NoError(t, err)

	citations, err := r.Citations(ctx, Query{Text: parisText, TopK: 1})
	require.NoError(t, err)
	require.Len(t, citations, 1)

	parisHash := sha256.Sum256([]byte(parisText))
	assert.Equal(t, vectorstore.Citation{
		Context:  parisText,
		SourceID: parisPath,
		DocID:    hex.EncodeToString(parisHash[:]),
	}, citations[0])
}
