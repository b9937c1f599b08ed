package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ragstore.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded adapter.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the logical collection name. The physical name binds the
	// embedder dimension and is resolved during Initialize.
	// Default: "ragstore"
	Collection string

	// AllowReset opts in to Reset. Off by default so an operator cannot wipe
	// data without an explicit flag.
	AllowReset bool

	// BatchSize overrides DefaultBatchSize for Add.
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "ragstore"
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// lifecycle states for the reference adapter.
type storeState int

const (
	stateConnected storeState = iota // constructor done, no schema yet
	stateReady                       // Initialize complete
	stateResetting                   // Reset in progress
)

// chromemShared is the state shared between a store and its WithCollection
// handles: one DB handle, one embedder binding, one lifecycle state.
type chromemShared struct {
	db       *chromem.DB
	config   ChromemConfig
	logger   *zap.Logger
	naming   NamingRules

	mu       sync.RWMutex
	state    storeState
	embedder Embedder
	dim      int
}

// ChromemStore implements Store on chromem-go, an embeddable pure-Go vector
// engine. This is the document-store-style reference adapter: the backend's
// native where filter is already AND-of-equality over string metadata, so
// filter compilation is a flattening.
//
// Construction opens the DB handle only; Initialize binds the embedder and
// creates the collection for (logical name, dimension).
type ChromemStore struct {
	shared *chromemShared

	// physical is the active collection name. Mutable via SetCollectionName
	// and not safe for concurrent use; WithCollection returns a handle with
	// its own copy instead.
	physical string
}

// NewChromemStore opens the chromem DB handle. No schema work happens here;
// call Initialize before any data operation.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		expanded, err := expandHomePath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: creating chromem DB: %v", ErrBackendUnavailable, err)
		}
	}

	logger.Info("chromem store connected",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return &ChromemStore{
		shared: &chromemShared{
			db:     db,
			config: config,
			logger: logger,
			naming: NamingRules{AllowUnderscore: true},
			state:  stateConnected,
		},
	}, nil
}

// expandHomePath expands ~ to the home directory.
func expandHomePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Initialize binds the embedder and creates the collection for
// (logical name, embedder dimension).
func (s *ChromemStore) Initialize(ctx context.Context, embedder Embedder) error {
	if embedder == nil {
		return ErrEmbedderRequired
	}

	sh := s.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.embedder = embedder
	sh.dim = embedder.Dimension()
	s.physical = PhysicalCollectionName(sh.config.Collection, sh.dim, sh.naming)

	if _, err := sh.db.GetOrCreateCollection(s.physical, nil, sh.embeddingFunc()); err != nil {
		return fmt.Errorf("creating collection %s: %w", s.physical, err)
	}
	sh.state = stateReady

	sh.logger.Info("chromem store initialized",
		zap.String("collection", s.physical),
		zap.Int("dimension", sh.dim),
	)
	return nil
}

// embeddingFunc adapts the injected Embedder to chromem's callback.
func (sh *chromemShared) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if sh.embedder == nil {
			return nil, ErrEmbedderRequired
		}
		return sh.embedder.EmbedQuery(ctx, text)
	}
}

// checkReady returns the lifecycle error for the current state, if any.
func (sh *chromemShared) checkReady() error {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	switch sh.state {
	case stateReady:
		return nil
	case stateResetting:
		return ErrCollectionNotReady
	default:
		return ErrNotReady
	}
}

// activeCollection fetches the chromem collection behind the active name.
func (s *ChromemStore) activeCollection() (*chromem.Collection, error) {
	col, err := s.shared.db.GetOrCreateCollection(s.physical, nil, s.shared.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", s.physical, err)
	}
	return col, nil
}

// GetExisting reports which of the given ids are present, optionally
// narrowed by a metadata filter. chromem is in-process, so per-id lookups
// are map reads, not network calls.
func (s *ChromemStore) GetExisting(ctx context.Context, ids []string, where map[string]any, limit int) (map[string]bool, error) {
	if err := s.shared.checkReady(); err != nil {
		return nil, err
	}
	col, err := s.activeCollection()
	if err != nil {
		return nil, err
	}

	filter := FlattenEq(BuildFilter(where))
	existing := make(map[string]bool)
	for _, page := range batchIDs(ids, s.shared.config.BatchSize) {
		for _, id := range page {
			doc, err := col.GetByID(ctx, id)
			if err != nil {
				continue // not found
			}
			if !metadataMatches(doc.Metadata, filter) {
				continue
			}
			existing[id] = true
			if limit > 0 && len(existing) >= limit {
				return existing, nil
			}
		}
	}
	return existing, nil
}

// metadataMatches reports whether stored string metadata satisfies every
// equality constraint.
func metadataMatches(meta map[string]string, filter []Eq) bool {
	for _, eq := range filter {
		if meta[eq.Field] != scalarString(eq.Value) {
			return false
		}
	}
	return true
}

// Add inserts records in batches of the configured size. Embeddings are
// computed per batch when the request does not carry them, so a batch
// failure never pays for embeddings it cannot store.
func (s *ChromemStore) Add(ctx context.Context, req AddRequest) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", req.Len()),
		attribute.String("collection", s.physical),
	)

	if err := s.shared.checkReady(); err != nil {
		return err
	}
	if req.Len() == 0 {
		return ErrEmptyDocuments
	}
	if err := validateAddRequest(req, s.shared.dim); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	col, err := s.activeCollection()
	if err != nil {
		return err
	}

	err = runBatches(ctx, req, s.shared.config.BatchSize, func(ctx context.Context, batch AddRequest) error {
		return s.writeBatch(ctx, col, batch)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.shared.logger.Debug("added records to chromem",
		zap.String("collection", s.physical),
		zap.Int("count", req.Len()),
	)
	return nil
}

// writeBatch embeds (when needed) and stores one batch.
func (s *ChromemStore) writeBatch(ctx context.Context, col *chromem.Collection, batch AddRequest) error {
	embeddings := batch.Embeddings
	if embeddings == nil {
		var err error
		embeddings, err = s.shared.embedder.EmbedDocuments(ctx, batch.Texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
	}

	docs := make([]chromem.Document, len(batch.IDs))
	for i := range batch.IDs {
		if len(embeddings[i]) != s.shared.dim {
			return &DimensionMismatchError{Expected: s.shared.dim, Actual: len(embeddings[i])}
		}
		var meta map[string]any
		if batch.Metadatas != nil {
			meta = batch.Metadatas[i]
		}
		docs[i] = chromem.Document{
			ID:        batch.IDs[i],
			Content:   batch.Texts[i],
			Metadata:  metadataToStrings(meta),
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return translateChromemError(err, s.shared.dim)
	}
	return nil
}

// validateAddRequest checks the parallel slices line up and any supplied
// embeddings carry the collection's dimension.
func validateAddRequest(req AddRequest, dim int) error {
	if len(req.Texts) != len(req.IDs) {
		return fmt.Errorf("%w: %d ids but %d texts", ErrInvalidConfig, len(req.IDs), len(req.Texts))
	}
	if req.Metadatas != nil && len(req.Metadatas) != len(req.IDs) {
		return fmt.Errorf("%w: %d ids but %d metadatas", ErrInvalidConfig, len(req.IDs), len(req.Metadatas))
	}
	if req.Embeddings != nil {
		if len(req.Embeddings) != len(req.IDs) {
			return fmt.Errorf("%w: %d ids but %d embeddings", ErrInvalidConfig, len(req.IDs), len(req.Embeddings))
		}
		for _, emb := range req.Embeddings {
			if len(emb) != dim {
				return &DimensionMismatchError{Expected: dim, Actual: len(emb)}
			}
		}
	}
	return nil
}

// Query runs a similarity search against the active collection.
func (s *ChromemStore) Query(ctx context.Context, req QueryRequest) ([]QueryResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.physical),
		attribute.Int("n_results", req.NResults),
		attribute.Bool("citations", req.Citations),
	)

	if err := s.shared.checkReady(); err != nil {
		return nil, err
	}
	if req.NResults <= 0 {
		return nil, fmt.Errorf("%w: nResults must be positive, got %d", ErrInvalidConfig, req.NResults)
	}
	if req.Text == "" && req.Vector == nil {
		return nil, fmt.Errorf("%w: query text or vector required", ErrInvalidConfig)
	}
	if req.Vector != nil && len(req.Vector) != s.shared.dim {
		return nil, &DimensionMismatchError{Expected: s.shared.dim, Actual: len(req.Vector)}
	}

	col, err := s.activeCollection()
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= live document count.
	n := req.NResults
	if count := col.Count(); count == 0 {
		return []QueryResult{}, nil
	} else if n > count {
		n = count
	}

	where := eqMapToStrings(FlattenEq(BuildFilter(req.Where)))

	var hits []chromem.Result
	if req.Vector != nil {
		hits, err = col.QueryEmbedding(ctx, req.Vector, n, where, nil)
	} else {
		hits, err = col.Query(ctx, req.Text, n, where, nil)
	}
	if err != nil {
		err = translateChromemError(err, s.shared.dim)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]QueryResult, len(hits))
	for i, hit := range hits {
		results[i] = QueryResult{
			Context:  hit.Content,
			Metadata: metadataFromStrings(hit.Metadata),
			Score:    hit.Similarity,
		}
		if req.Citations {
			if _, err := results[i].Citation(); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("record %s: %w", hit.ID, err)
			}
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Count returns the number of live records in the active collection.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	if err := s.shared.checkReady(); err != nil {
		return 0, err
	}
	col, err := s.activeCollection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// DeleteWhere deletes all records matching the metadata filter.
func (s *ChromemStore) DeleteWhere(ctx context.Context, where map[string]any) error {
	if err := s.shared.checkReady(); err != nil {
		return err
	}
	if len(where) == 0 {
		return fmt.Errorf("%w: delete filter cannot be empty", ErrInvalidConfig)
	}
	col, err := s.activeCollection()
	if err != nil {
		return err
	}
	filter := eqMapToStrings(FlattenEq(BuildFilter(where)))
	if err := col.Delete(ctx, filter, nil); err != nil {
		return fmt.Errorf("deleting from collection %s: %w", s.physical, err)
	}
	s.shared.logger.Debug("deleted records from chromem",
		zap.String("collection", s.physical),
		zap.Int("filter_keys", len(where)),
	)
	return nil
}

// Reset destroys the active collection and recreates an empty one with the
// same schema. Operations racing with the reset fail with
// ErrCollectionNotReady rather than targeting a half-created collection.
func (s *ChromemStore) Reset(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.physical))

	sh := s.shared
	if !sh.config.AllowReset {
		span.SetStatus(codes.Error, ErrResetDisabled.Error())
		return ErrResetDisabled
	}

	sh.mu.Lock()
	if st := sh.state; st != stateReady {
		sh.mu.Unlock()
		if st == stateResetting {
			return ErrCollectionNotReady
		}
		return ErrNotReady
	}
	sh.state = stateResetting
	sh.mu.Unlock()

	defer func() {
		sh.mu.Lock()
		sh.state = stateReady
		sh.mu.Unlock()
	}()

	if err := sh.db.DeleteCollection(s.physical); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection %s: %w", s.physical, err)
	}
	if _, err := sh.db.CreateCollection(s.physical, nil, sh.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recreating collection %s: %w", s.physical, err)
	}

	span.SetStatus(codes.Ok, "success")
	sh.logger.Info("chromem collection reset", zap.String("collection", s.physical))
	return nil
}

// SetCollectionName switches the active collection, creating it on first use.
// Not safe for concurrent use; see WithCollection.
func (s *ChromemStore) SetCollectionName(ctx context.Context, name string) error {
	sh := s.shared
	if err := sh.checkReady(); err != nil {
		return err
	}
	physical := PhysicalCollectionName(name, sh.dim, sh.naming)
	if _, err := sh.db.GetOrCreateCollection(physical, nil, sh.embeddingFunc()); err != nil {
		return fmt.Errorf("creating collection %s: %w", physical, err)
	}
	s.physical = physical
	return nil
}

// WithCollection returns a handle scoped to the named collection. The handle
// shares the DB connection and embedder binding but has its own active
// collection, so it is safe to use concurrently with the parent. The physical
// name binds the dimension known at creation; take handles after Initialize.
func (s *ChromemStore) WithCollection(name string) Store {
	sh := s.shared
	sh.mu.RLock()
	dim := sh.dim
	sh.mu.RUnlock()
	return &ChromemStore{
		shared:   sh,
		physical: PhysicalCollectionName(name, dim, sh.naming),
	}
}

// Close is a no-op: chromem persists automatically.
func (s *ChromemStore) Close() error {
	s.shared.logger.Info("chromem store closed")
	return nil
}

// translateChromemError maps chromem's dimension complaints onto the typed
// error so the raw backend message never reaches callers.
func translateChromemError(err error, expected int) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "dimension") {
		return &DimensionMismatchError{Expected: expected, Actual: -1}
	}
	return err
}

// metadataToStrings converts caller metadata to chromem's string map.
func metadataToStrings(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		result[k] = scalarString(v)
	}
	return result
}

// metadataFromStrings converts chromem's string map back to caller metadata.
func metadataFromStrings(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// eqMapToStrings renders equality leaves as chromem's native where map.
func eqMapToStrings(filter []Eq) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]string, len(filter))
	for _, eq := range filter {
		out[eq.Field] = scalarString(eq.Value)
	}
	return out
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
