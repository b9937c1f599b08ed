package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "ragstore", cfg.VectorStore.Collection)
	assert.Equal(t, 100, cfg.VectorStore.BatchSize)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.VectorStore.Elasticsearch.Addresses)
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "fastembed", cfg.Embedding.Provider)
	assert.Equal(t, 2000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, "default", cfg.Ingest.PipelineID)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "unknown store provider", mutate: func(c *Config) { c.VectorStore.Provider = "pinecone" }, wantErr: true},
		{name: "unknown embedding provider", mutate: func(c *Config) { c.Embedding.Provider = "cohere" }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Ingest.Workers = 0 }, wantErr: true},
		{name: "overlap exceeds chunk size", mutate: func(c *Config) { c.Ingest.ChunkOverlap = 5000 }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vectorstore:
  provider: elasticsearch
  collection: knowledge
  elasticsearch:
    addresses:
      - http://es1:9200
      - http://es2:9200
    username: elastic
embedding:
  provider: openai
  model: text-embedding-3-small
  base_url: http://tei:8080/v1
ingest:
  chunk_size: 500
  chunk_overlap: 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "elasticsearch", cfg.VectorStore.Provider)
	assert.Equal(t, "knowledge", cfg.VectorStore.Collection)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.VectorStore.Elasticsearch.Addresses)
	assert.Equal(t, "elastic", cfg.VectorStore.Elasticsearch.Username)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "http://tei:8080/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)

	// Unset fields still get defaults.
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vectorstore:\n  provider: chromem\n"), 0o644))

	t.Setenv("RAGSTORE_VECTORSTORE_PROVIDER", "qdrant")
	t.Setenv("RAGSTORE_VECTORSTORE_QDRANT_HOST", "qdrant.internal")
	t.Setenv("RAGSTORE_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vectorstore:\n  provider: pinecone\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RAGSTORE_VECTORSTORE_PROVIDER", "vectorstore.provider"},
		{"RAGSTORE_VECTORSTORE_ALLOW_RESET", "vectorstore.allow_reset"},
		{"RAGSTORE_VECTORSTORE_CHROMEM_PATH", "vectorstore.chromem.path"},
		{"RAGSTORE_VECTORSTORE_ELASTICSEARCH_API_KEY", "vectorstore.elasticsearch.api_key"},
		{"RAGSTORE_VECTORSTORE_QDRANT_USE_TLS", "vectorstore.qdrant.use_tls"},
		{"RAGSTORE_EMBEDDING_BASE_URL", "embedding.base_url"},
		{"RAGSTORE_INGEST_CHUNK_SIZE", "ingest.chunk_size"},
		{"RAGSTORE_LOGGING_LEVEL", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, transformEnvKey(tt.in))
		})
	}
}
