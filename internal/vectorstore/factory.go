package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a backend adapter from configuration.
//
// The provider field selects the implementation:
//   - "chromem" (default): embedded chromem-go engine, no external service
//   - "elasticsearch": server-side index over HTTP
//   - "qdrant": external Qdrant server over gRPC
//
// The returned store is Connected but not Ready; callers must Initialize it
// with an embedder before any data operation.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	vs := cfg.VectorStore
	switch vs.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       vs.Chromem.Path,
			Compress:   vs.Chromem.Compress,
			Collection: vs.Collection,
			AllowReset: vs.AllowReset,
			BatchSize:  vs.BatchSize,
		}, logger)

	case "elasticsearch":
		return NewElasticStore(ElasticConfig{
			Addresses:  vs.Elasticsearch.Addresses,
			Username:   vs.Elasticsearch.Username,
			Password:   vs.Elasticsearch.Password,
			APIKey:     vs.Elasticsearch.APIKey,
			Index:      vs.Collection,
			AllowReset: vs.AllowReset,
			BatchSize:  vs.BatchSize,
		}, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       vs.Qdrant.Host,
			Port:       vs.Qdrant.Port,
			UseTLS:     vs.Qdrant.UseTLS,
			Collection: vs.Collection,
			AllowReset: vs.AllowReset,
			BatchSize:  vs.BatchSize,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, elasticsearch, qdrant)",
			ErrInvalidConfig, vs.Provider)
	}
}
