// Package vectorstore makes heterogeneous vector databases behave
// identically behind one contract.
//
// Every adapter implements the same Store interface: two-phase
// initialization, batched inserts with dedup lookup, metadata-filtered
// similarity search with optional citations, and guarded collection
// lifecycle. Backends differ wildly in their native APIs (filter DSLs,
// batch limits, collection models, distance metrics); the contract pins the
// semantics callers may rely on and each adapter absorbs the differences.
//
// # Lifecycle
//
// Construction opens the client connection only. Initialize binds the
// embedder, which fixes the vector dimension and therefore the physical
// collection name: slugify(logical) + "-" + dimension. Switching embedding
// models switches collections, so stale-dimension data is never reused.
//
//	store, err := vectorstore.NewChromemStore(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	if err := store.Initialize(ctx, embedder); err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Any data method before Initialize fails with ErrNotReady.
//
// # Filters
//
// Caller where maps are AND-of-equality. They are parsed into a small
// boolean tree (Eq, And) which each adapter compiles to its native filter
// language: chromem's conjunctive string map, Elasticsearch bool/term
// clauses, Qdrant Must conditions. Multi-key filters are always wrapped in
// an explicit AND node so no backend can default to OR.
//
// # Batching
//
// Add chunks arbitrarily large requests into batches of 100 and submits
// them in input order. A failed batch aborts the rest; the returned
// BatchPartialFailureError reports which batches were written.
//
// # Citations
//
// Queries with Citations set return provenance from the reserved url and
// doc_id metadata keys. A record missing either key fails the query with
// ErrMissingCitationMetadata rather than returning an empty source.
//
// # Concurrency
//
// The active collection set by SetCollectionName is per-instance mutable
// state and is not safe for concurrent use. WithCollection returns a scoped
// handle sharing the connection but not the collection pointer.
package vectorstore
