package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

func TestNewOpenAIProviderValidation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig, "model is required")

	_, err = NewOpenAIProvider(OpenAIConfig{Model: "custom-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig, "unknown models need an explicit dimension")

	p, err := NewOpenAIProvider(OpenAIConfig{Model: "custom-model", Dimension: 512})
	require.NoError(t, err)
	assert.Equal(t, 512, p.Dimension())
}

func TestNewOpenAIProviderKnownModelDimensions(t *testing.T) {
	tests := []struct {
		model string
		dim   int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"BAAI/bge-small-en-v1.5", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := NewOpenAIProvider(OpenAIConfig{Model: tt.model})
			require.NoError(t, err)
			assert.Equal(t, tt.dim, p.Dimension())
		})
	}
}

func TestOpenAIProviderEmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{Model: "text-embedding-3-small"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

// fakeEmbeddingServer serves an OpenAI-compatible /embeddings endpoint the
// way a TEI deployment would.
func fakeEmbeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, datum{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIProviderAgainstCompatibleServer(t *testing.T) {
	srv := fakeEmbeddingServer(t, 8)
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   srv.URL,
		Model:     "custom-model",
		Dimension: 8,
	})
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])

	vec, err := p.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestNewProviderFactory(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: "unknown"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewProvider(config.EmbeddingConfig{
		Provider: "openai",
		Model:    "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
}
