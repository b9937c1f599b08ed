package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

func TestNewStoreChromem(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.VectorStore.Provider = "chromem"

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.ChromemStore{}, store)
}

func TestNewStoreDefaultsToChromem(t *testing.T) {
	cfg := &config.Config{}
	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.ChromemStore{}, store)
}

func TestNewStoreElasticsearch(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.VectorStore.Provider = "elasticsearch"

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.ElasticStore{}, store)
}

func TestNewStoreUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.VectorStore.Provider = "pinecone"

	_, err := vectorstore.NewStore(cfg, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
