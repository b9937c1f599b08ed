// Package vectorstore defines the contract every vector database adapter
// must satisfy, and the shared pieces (filter AST, collection naming,
// batching) that keep heterogeneous backends indistinguishable to callers.
package vectorstore

import "context"

// Embedder generates vector embeddings from text. The store never knows
// which provider computed them; it only relies on a fixed dimension.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed embedding length.
	Dimension() int
}

// Store is the contract every backend adapter implements.
//
// Lifecycle is two-phase: the constructor may open a client connection, but
// schema and collection creation are deferred until Initialize binds the
// embedder (and thus the vector dimension). Any data method called before
// Initialize completes fails with ErrNotReady.
//
// The active collection set by SetCollectionName is per-instance mutable
// state and is NOT safe for concurrent use; concurrent callers needing
// per-request collection targeting should use WithCollection, which returns
// a scoped handle that does not touch shared state.
//
// Adapter-native errors never cross this boundary: every implementation
// translates them into the taxonomy in errors.go.
type Store interface {
	// Initialize binds the embedder and creates or fetches the collection for
	// (logical name, embedder dimension). Fails with ErrEmbedderRequired when
	// embedder is nil.
	Initialize(ctx context.Context, embedder Embedder) error

	// GetExisting reports which of the given ids already exist, optionally
	// narrowed by a metadata filter. Used for dedup before insert. Scales to
	// thousands of ids: adapters batch or paginate internally rather than
	// issuing one request per id. A limit of 0 means no limit.
	GetExisting(ctx context.Context, ids []string, where map[string]any, limit int) (map[string]bool, error)

	// Add inserts new records, chunking into backend-safe batches of
	// DefaultBatchSize. Batches are submitted in input order; a failed batch
	// aborts the rest and the returned BatchPartialFailureError reports which
	// batches succeeded.
	Add(ctx context.Context, req AddRequest) error

	// Query runs a similarity search and returns ranked results. With
	// req.Citations set, every hit must carry url and doc_id metadata or the
	// call fails with ErrMissingCitationMetadata.
	Query(ctx context.Context, req QueryRequest) ([]QueryResult, error)

	// Count returns the exact number of live records in the active collection.
	Count(ctx context.Context) (int, error)

	// DeleteWhere deletes all records matching the metadata filter. Delete is
	// pushed to the backend (delete-by-query), never a client-side scan.
	DeleteWhere(ctx context.Context, where map[string]any) error

	// Reset irreversibly destroys the active collection and recreates an
	// empty one with the same schema. Fails with ErrResetDisabled unless the
	// adapter was configured with AllowReset.
	Reset(ctx context.Context) error

	// SetCollectionName switches the active collection, creating it on first
	// use. All subsequent operations target the new collection.
	SetCollectionName(ctx context.Context, name string) error

	// WithCollection returns a handle scoped to the named collection without
	// mutating this instance's active collection. Safe for concurrent use.
	// The handle binds the embedder dimension known at creation, so call it
	// only after Initialize; a handle taken earlier binds no dimension and
	// must be re-created once the store is ready.
	WithCollection(name string) Store

	// Close releases the backend connection.
	Close() error
}
