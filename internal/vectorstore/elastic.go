package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var elasticTracer = otel.Tracer("ragstore.vectorstore.elastic")

// ElasticConfig holds configuration for the Elasticsearch adapter.
type ElasticConfig struct {
	// Addresses are the cluster node URLs.
	// Default: http://localhost:9200
	Addresses []string

	// Username and Password enable basic auth when set.
	Username string
	Password string

	// APIKey enables API-key auth when set (takes precedence over basic auth).
	APIKey string

	// Index is the logical index name. The physical name binds the embedder
	// dimension and is resolved during Initialize.
	// Default: "ragstore"
	Index string

	// AllowReset opts in to Reset.
	AllowReset bool

	// BatchSize overrides DefaultBatchSize for bulk writes.
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ElasticConfig) ApplyDefaults() {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{"http://localhost:9200"}
	}
	if c.Index == "" {
		c.Index = "ragstore"
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Validate validates the configuration.
func (c *ElasticConfig) Validate() error {
	for _, addr := range c.Addresses {
		if addr == "" {
			return fmt.Errorf("%w: empty address", ErrInvalidConfig)
		}
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

type elasticShared struct {
	client *elasticsearch.Client
	config ElasticConfig
	logger *zap.Logger
	naming NamingRules

	mu       sync.RWMutex
	state    storeState
	embedder Embedder
	dim      int
}

// ElasticStore implements Store on Elasticsearch: a server-side index with a
// native full-text field plus a dense_vector field of fixed dims.
//
// The adapter creates its index idempotently during Initialize, writes
// through the bulk API, and refreshes the index after every batch so reads
// immediately after Add never observe stale data. Deletes are delete-by-query
// scoped to an explicit filter, never a client-side scan.
type ElasticStore struct {
	shared   *elasticShared
	physical string
}

// NewElasticStore opens the HTTP client. No index work happens here; call
// Initialize before any data operation.
func NewElasticStore(config ElasticConfig, logger *zap.Logger) (*ElasticStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating elasticsearch client: %v", ErrBackendUnavailable, err)
	}

	logger.Info("elasticsearch store connected",
		zap.Strings("addresses", config.Addresses),
		zap.String("index", config.Index),
	)

	return &ElasticStore{
		shared: &elasticShared{
			client: client,
			config: config,
			logger: logger,
			naming: NamingRules{AllowUnderscore: true, MaxLength: 200},
			state:  stateConnected,
		},
	}, nil
}

// Initialize binds the embedder and creates the index for
// (logical name, embedder dimension) if it does not already exist.
func (s *ElasticStore) Initialize(ctx context.Context, embedder Embedder) error {
	if embedder == nil {
		return ErrEmbedderRequired
	}

	sh := s.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.embedder = embedder
	sh.dim = embedder.Dimension()
	s.physical = PhysicalCollectionName(sh.config.Index, sh.dim, sh.naming)

	if err := sh.ensureIndex(ctx, s.physical); err != nil {
		return err
	}
	sh.state = stateReady

	sh.logger.Info("elasticsearch store initialized",
		zap.String("index", s.physical),
		zap.Int("dimension", sh.dim),
	)
	return nil
}

// ensureIndex creates the index with the text + dense_vector mapping unless
// it already exists. Create is idempotent across processes.
func (sh *elasticShared) ensureIndex(ctx context.Context, index string) error {
	res, err := sh.client.Indices.Exists([]string{index}, sh.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: checking index %s: %v", ErrBackendUnavailable, index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"text": map[string]any{"type": "text"},
				"embeddings": map[string]any{
					"type":  "dense_vector",
					"index": false,
					"dims":  sh.dim,
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}

	createRes, err := sh.client.Indices.Create(index,
		sh.client.Indices.Create.WithContext(ctx),
		sh.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("%w: creating index %s: %v", ErrBackendUnavailable, index, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		// Lost a create race: another writer made the index first.
		if strings.Contains(readBodyString(createRes), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("creating index %s: %s", index, createRes.Status())
	}
	return nil
}

func (sh *elasticShared) checkReady() error {
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

// GetExisting reports which of the given ids are present using paged ids
// queries, one request per page rather than per id.
func (s *ElasticStore) GetExisting(ctx context.Context, ids []string, where map[string]any, limit int) (map[string]bool, error) {
	if err := s.shared.checkReady(); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for _, page := range batchIDs(ids, s.shared.config.BatchSize) {
		must := []any{map[string]any{"ids": map[string]any{"values": page}}}
		must = append(must, compileElasticTerms(BuildFilter(where))...)

		body, err := json.Marshal(map[string]any{
			"query": map[string]any{"bool": map[string]any{"must": must}},
		})
		if err != nil {
			return nil, fmt.Errorf("encoding query: %w", err)
		}

		res, err := s.shared.client.Search(
			s.shared.client.Search.WithContext(ctx),
			s.shared.client.Search.WithIndex(s.physical),
			s.shared.client.Search.WithBody(bytes.NewReader(body)),
			s.shared.client.Search.WithSize(len(page)),
			s.shared.client.Search.WithSourceExcludes("*"),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: searching index %s: %v", ErrBackendUnavailable, s.physical, err)
		}
		hits, err := decodeHits(res)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			existing[hit.ID] = true
			if limit > 0 && len(existing) >= limit {
				return existing, nil
			}
		}
	}
	return existing, nil
}

// Add writes records through the bulk API in batches, refreshing the index
// after each batch so immediate reads observe the writes.
func (s *ElasticStore) Add(ctx context.Context, req AddRequest) error {
	ctx, span := elasticTracer.Start(ctx, "ElasticStore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", req.Len()),
		attribute.String("index", s.physical),
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

	err := runBatches(ctx, req, s.shared.config.BatchSize, s.bulkWrite)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.shared.logger.Debug("bulk-indexed records",
		zap.String("index", s.physical),
		zap.Int("count", req.Len()),
	)
	return nil
}

// bulkWrite embeds (when needed), bulk-indexes one batch, and refreshes.
func (s *ElasticStore) bulkWrite(ctx context.Context, batch AddRequest) error {
	embeddings := batch.Embeddings
	if embeddings == nil {
		var err error
		embeddings, err = s.shared.embedder.EmbedDocuments(ctx, batch.Texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
	}

	var buf bytes.Buffer
	for i := range batch.IDs {
		if len(embeddings[i]) != s.shared.dim {
			return &DimensionMismatchError{Expected: s.shared.dim, Actual: len(embeddings[i])}
		}
		action, err := json.Marshal(map[string]any{
			"index": map[string]any{"_index": s.physical, "_id": batch.IDs[i]},
		})
		if err != nil {
			return fmt.Errorf("encoding bulk action: %w", err)
		}
		var meta map[string]any
		if batch.Metadatas != nil {
			meta = batch.Metadatas[i]
		}
		source, err := json.Marshal(map[string]any{
			"text":       batch.Texts[i],
			"metadata":   meta,
			"embeddings": embeddings[i],
		})
		if err != nil {
			return fmt.Errorf("encoding bulk source: %w", err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}

	res, err := s.shared.client.Bulk(bytes.NewReader(buf.Bytes()),
		s.shared.client.Bulk.WithContext(ctx),
		s.shared.client.Bulk.WithIndex(s.physical),
	)
	if err != nil {
		return fmt.Errorf("%w: bulk write to %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk write to %s: %s", s.physical, res.Status())
	}
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decoding bulk response: %w", err)
	}
	if bulkResp.Errors {
		return fmt.Errorf("bulk write to %s: one or more items failed", s.physical)
	}

	// Explicit refresh: without it, Count/Query immediately after Add can
	// return stale results under the backend's eventual-consistency model.
	refreshRes, err := s.shared.client.Indices.Refresh(
		s.shared.client.Indices.Refresh.WithContext(ctx),
		s.shared.client.Indices.Refresh.WithIndex(s.physical),
	)
	if err != nil {
		return fmt.Errorf("%w: refreshing index %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	refreshRes.Body.Close()
	return nil
}

// Query runs a script_score cosine similarity search, filtered by the
// compiled where clause.
func (s *ElasticStore) Query(ctx context.Context, req QueryRequest) ([]QueryResult, error) {
	ctx, span := elasticTracer.Start(ctx, "ElasticStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("index", s.physical),
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

	vector := req.Vector
	if vector == nil {
		var err error
		vector, err = s.shared.embedder.EmbedQuery(ctx, req.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}
	if len(vector) != s.shared.dim {
		err := &DimensionMismatchError{Expected: s.shared.dim, Actual: len(vector)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	must := []any{map[string]any{"exists": map[string]any{"field": "text"}}}
	must = append(must, compileElasticTerms(BuildFilter(req.Where))...)

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"bool": map[string]any{"must": must}},
				"script": map[string]any{
					"source": "cosineSimilarity(params.query_vector, 'embeddings') + 1.0",
					"params": map[string]any{"query_vector": vector},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	res, err := s.shared.client.Search(
		s.shared.client.Search.WithContext(ctx),
		s.shared.client.Search.WithIndex(s.physical),
		s.shared.client.Search.WithBody(bytes.NewReader(body)),
		s.shared.client.Search.WithSize(req.NResults),
		s.shared.client.Search.WithSourceIncludes("text", "metadata"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: searching index %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	hits, err := decodeHits(res)
	if err != nil {
		err = translateElasticError(err, s.shared.dim)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]QueryResult, len(hits))
	for i, hit := range hits {
		results[i] = QueryResult{
			Context:  hit.Source.Text,
			Metadata: hit.Source.Metadata,
			Score:    hit.Score,
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

// Count returns the exact number of documents in the active index.
func (s *ElasticStore) Count(ctx context.Context) (int, error) {
	if err := s.shared.checkReady(); err != nil {
		return 0, err
	}
	res, err := s.shared.client.Count(
		s.shared.client.Count.WithContext(ctx),
		s.shared.client.Count.WithIndex(s.physical),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: counting index %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("counting index %s: %s", s.physical, res.Status())
	}
	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return countResp.Count, nil
}

// DeleteWhere deletes all documents matching the filter server-side.
func (s *ElasticStore) DeleteWhere(ctx context.Context, where map[string]any) error {
	if err := s.shared.checkReady(); err != nil {
		return err
	}
	if len(where) == 0 {
		return fmt.Errorf("%w: delete filter cannot be empty", ErrInvalidConfig)
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"must": compileElasticTerms(BuildFilter(where))}},
	})
	if err != nil {
		return fmt.Errorf("encoding delete query: %w", err)
	}

	res, err := s.shared.client.DeleteByQuery([]string{s.physical}, bytes.NewReader(body),
		s.shared.client.DeleteByQuery.WithContext(ctx),
		s.shared.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: delete-by-query on %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete-by-query on %s: %s", s.physical, res.Status())
	}
	s.shared.logger.Debug("deleted records by query",
		zap.String("index", s.physical),
		zap.Int("filter_keys", len(where)),
	)
	return nil
}

// Reset drops the active index and recreates it with the same mapping.
func (s *ElasticStore) Reset(ctx context.Context) error {
	ctx, span := elasticTracer.Start(ctx, "ElasticStore.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("index", s.physical))

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

	res, err := sh.client.Indices.Delete([]string{s.physical}, sh.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: deleting index %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	res.Body.Close()

	if err := sh.ensureIndex(ctx, s.physical); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	sh.logger.Info("elasticsearch index reset", zap.String("index", s.physical))
	return nil
}

// SetCollectionName switches the active index, creating it on first use.
// Not safe for concurrent use; see WithCollection.
func (s *ElasticStore) SetCollectionName(ctx context.Context, name string) error {
	sh := s.shared
	if err := sh.checkReady(); err != nil {
		return err
	}
	physical := PhysicalCollectionName(name, sh.dim, sh.naming)
	if err := sh.ensureIndex(ctx, physical); err != nil {
		return err
	}
	s.physical = physical
	return nil
}

// WithCollection returns a handle scoped to the named index. The index is
// created lazily on first write through ensureIndex during operations that
// need it; callers wanting eager creation use SetCollectionName. The physical
// name binds the dimension known at creation; take handles after Initialize.
func (s *ElasticStore) WithCollection(name string) Store {
	sh := s.shared
	sh.mu.RLock()
	dim := sh.dim
	sh.mu.RUnlock()
	return &ElasticStore{
		shared:   sh,
		physical: PhysicalCollectionName(name, dim, sh.naming),
	}
}

// Close is a no-op: the HTTP client holds no persistent connection state.
func (s *ElasticStore) Close() error {
	s.shared.logger.Info("elasticsearch store closed")
	return nil
}

// compileElasticTerms compiles the filter tree to term clauses on metadata
// fields. String values match the keyword sub-field so equality is exact
// rather than analyzed.
func compileElasticTerms(f Filter) []any {
	leaves := FlattenEq(f)
	terms := make([]any, 0, len(leaves))
	for _, eq := range leaves {
		field := "metadata." + eq.Field
		if _, isString := eq.Value.(string); isString {
			field += ".keyword"
		}
		terms = append(terms, map[string]any{"term": map[string]any{field: eq.Value}})
	}
	return terms
}

// elasticHit is the subset of a search hit the adapter consumes.
type elasticHit struct {
	ID     string  `json:"_id"`
	Score  float32 `json:"_score"`
	Source struct {
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	} `json:"_source"`
}

// decodeHits parses a search response, consuming and closing the body.
func decodeHits(res *esapi.Response) ([]elasticHit, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s: %s", res.Status(), readBodyString(res))
	}
	var parsed struct {
		Hits struct {
			Hits []elasticHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return parsed.Hits.Hits, nil
}

// readBodyString drains a response body for error messages.
func readBodyString(res *esapi.Response) string {
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

// translateElasticError maps the backend's dims complaints onto the typed
// error.
func translateElasticError(err error, expected int) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "dims") || strings.Contains(msg, "dimension") {
		return &DimensionMismatchError{Expected: expected, Actual: -1}
	}
	return err
}

// Ensure ElasticStore implements Store.
var _ Store = (*ElasticStore)(nil)
