// Package config provides configuration loading for ragstore.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// VectorStoreConfig selects and configures the backend adapter.
type VectorStoreConfig struct {
	// Provider is the backend: "chromem" (default), "elasticsearch", "qdrant".
	Provider string `koanf:"provider"`

	// Collection is the logical collection name shared by all providers.
	Collection string `koanf:"collection"`

	// AllowReset opts in to destructive resets.
	AllowReset bool `koanf:"allow_reset"`

	// BatchSize is the per-backend-call record count for inserts.
	BatchSize int `koanf:"batch_size"`

	Chromem       ChromemSettings       `koanf:"chromem"`
	Elasticsearch ElasticsearchSettings `koanf:"elasticsearch"`
	Qdrant        QdrantSettings        `koanf:"qdrant"`
}

// ChromemSettings configures the embedded chromem backend.
type ChromemSettings struct {
	// Path is the persistence directory. Empty means in-memory.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// ElasticsearchSettings configures the Elasticsearch backend.
type ElasticsearchSettings struct {
	Addresses []string `koanf:"addresses"`
	Username  string   `koanf:"username"`
	Password  string   `koanf:"password"`
	APIKey    string   `koanf:"api_key"`
}

// QdrantSettings configures the Qdrant gRPC backend.
type QdrantSettings struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" (OpenAI-compatible HTTP, works for TEI) or
	// "fastembed" (local ONNX).
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the API base URL for the openai provider.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates the openai provider.
	APIKey string `koanf:"api_key"`

	// CacheDir caches model files for the fastembed provider.
	CacheDir string `koanf:"cache_dir"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is the overlap between adjacent chunks.
	ChunkOverlap int `koanf:"chunk_overlap"`

	// Workers bounds the pool ingesting sources concurrently.
	Workers int `koanf:"workers"`

	// LedgerPath is the SQLite file tracking ingested sources.
	LedgerPath string `koanf:"ledger_path"`

	// PipelineID scopes ledger rows; defaults to "default".
	PipelineID string `koanf:"pipeline_id"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "ragstore"
	}
	if c.VectorStore.BatchSize == 0 {
		c.VectorStore.BatchSize = 100
	}
	if len(c.VectorStore.Elasticsearch.Addresses) == 0 {
		c.VectorStore.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "fastembed"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 2000
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 200
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.PipelineID == "" {
		c.Ingest.PipelineID = "default"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.VectorStore.Provider {
	case "chromem", "elasticsearch", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "fastembed":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.VectorStore.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("%w: ingest workers must be at least 1", ErrInvalidConfig)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be smaller than chunk size", ErrInvalidConfig)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
