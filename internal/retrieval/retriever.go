// Package retrieval runs similarity queries against a vector store and
// shapes the hits into contexts or citation triples for prompt assembly.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// DefaultTopK is the number of results returned when the query does not ask
// for a specific count.
const DefaultTopK = 3

// Query describes one retrieval request. Either Text or Vector must be set;
// when both are set the vector wins and no embedding call is made.
type Query struct {
	Text   string
	Vector []float32
	// TopK caps the number of results. Zero means DefaultTopK.
	TopK int
	// Where narrows results to records whose metadata matches every pair.
	Where map[string]any
}

// Retriever wraps an initialized store.
type Retriever struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// New builds a Retriever. A nil logger falls back to a no-op logger.
func New(store vectorstore.Store, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, logger: logger}, nil
}

func (q Query) validate() error {
	if q.Text == "" && len(q.Vector) == 0 {
		return fmt.Errorf("query needs text or a vector")
	}
	if q.TopK < 0 {
		return fmt.Errorf("top-k must be non-negative, got %d", q.TopK)
	}
	return nil
}

func (q Query) request(citations bool) vectorstore.QueryRequest {
	n := q.TopK
	if n == 0 {
		n = DefaultTopK
	}
	return vectorstore.QueryRequest{
		Text:      q.Text,
		Vector:    q.Vector,
		NResults:  n,
		Where:     q.Where,
		Citations: citations,
	}
}

// Contexts returns the matched chunk texts, most similar first.
func (r *Retriever) Contexts(ctx context.Context, q Query) ([]string, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	results, err := r.store.Query(ctx, q.request(false))
	if err != nil {
		return nil, err
	}
	contexts := make([]string, len(results))
	for i, res := range results {
		contexts[i] = res.Context
	}
	r.logger.Debug("retrieved contexts",
		zap.String("query", q.Text),
		zap.Int("results", len(contexts)))
	return contexts, nil
}

// Citations returns (context, source, doc_id) triples, most similar first.
// Every hit must carry source provenance; a record without it fails the
// whole call rather than silently degrading attribution.
func (r *Retriever) Citations(ctx context.Context, q Query) ([]vectorstore.Citation, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	results, err := r.store.Query(ctx, q.request(true))
	if err != nil {
		return nil, err
	}
	citations := make([]vectorstore.Citation, 0, len(results))
	for _, res := range results {
		c, err := res.Citation()
		if err != nil {
			return nil, err
		}
		citations = append(citations, c)
	}
	return citations, nil
}
