package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("ragstore.vectorstore.qdrant")

// payloadTextKey holds the chunk text inside a point payload; payloadIDKey
// holds the caller's content-hash id (point ids themselves must be UUIDs).
const (
	payloadTextKey = "text"
	payloadIDKey   = "id"
)

// QdrantConfig holds configuration for the Qdrant gRPC adapter.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// Collection is the logical collection name.
	// Default: "ragstore"
	Collection string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// AllowReset opts in to Reset.
	AllowReset bool

	// BatchSize overrides DefaultBatchSize for upserts.
	BatchSize int

	// MaxRetries is the retry budget for transient gRPC failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "ragstore"
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// isTransientGRPC reports whether a gRPC error should be retried.
func isTransientGRPC(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

type qdrantShared struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
	naming NamingRules

	mu       sync.RWMutex
	state    storeState
	embedder Embedder
	dim      int
}

// QdrantStore implements Store on Qdrant's native gRPC client. The binary
// protobuf transport avoids the HTTP layer's payload limits, which matters
// for large ingestion batches.
type QdrantStore struct {
	shared   *qdrantShared
	physical string
}

// NewQdrantStore connects to Qdrant and verifies the connection with a
// health check. No collection work happens here; call Initialize first.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrBackendUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %v", ErrBackendUnavailable, err)
	}

	logger.Info("qdrant store connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)

	return &QdrantStore{
		shared: &qdrantShared{
			client: client,
			config: config,
			logger: logger,
			naming: NamingRules{AllowUnderscore: true, MaxLength: 64},
			state:  stateConnected,
		},
	}, nil
}

// Initialize binds the embedder and creates the collection for
// (logical name, embedder dimension) if absent.
func (s *QdrantStore) Initialize(ctx context.Context, embedder Embedder) error {
	if embedder == nil {
		return ErrEmbedderRequired
	}

	sh := s.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.embedder = embedder
	sh.dim = embedder.Dimension()
	s.physical = PhysicalCollectionName(sh.config.Collection, sh.dim, sh.naming)

	if err := sh.ensureCollection(ctx, s.physical); err != nil {
		return err
	}
	sh.state = stateReady

	sh.logger.Info("qdrant store initialized",
		zap.String("collection", s.physical),
		zap.Int("dimension", sh.dim),
	)
	return nil
}

// ensureCollection creates the collection with cosine distance unless it
// already exists.
func (sh *qdrantShared) ensureCollection(ctx context.Context, name string) error {
	exists, err := sh.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrBackendUnavailable, name, err)
	}
	if exists {
		return nil
	}
	err = sh.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(sh.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("%w: creating collection %s: %v", ErrBackendUnavailable, name, err)
	}
	return nil
}

func (sh *qdrantShared) checkReady() error {
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

// retry runs op with exponential backoff on transient gRPC codes.
func (sh *qdrantShared) retry(ctx context.Context, name string, op func() error) error {
	backoff := sh.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransientGRPC(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt == sh.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ErrBackendUnavailable, name, attempt, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// GetExisting reports which of the given ids are present. Ids live in the
// point payload (point ids are UUIDs), so lookup is a paged scroll with a
// keywords match per page, never a request per id.
func (s *QdrantStore) GetExisting(ctx context.Context, ids []string, where map[string]any, limit int) (map[string]bool, error) {
	if err := s.shared.checkReady(); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for _, page := range batchIDs(ids, s.shared.config.BatchSize) {
		conditions := []*qdrant.Condition{
			qdrant.NewMatchKeywords(payloadIDKey, page...),
		}
		conditions = append(conditions, compileQdrantConditions(BuildFilter(where))...)

		var points []*qdrant.RetrievedPoint
		err := s.shared.retry(ctx, "scroll", func() error {
			res, err := s.shared.client.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.physical,
				Filter:         &qdrant.Filter{Must: conditions},
				Limit:          qdrant.PtrOf(uint32(len(page))),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return err
			}
			points = res
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, point := range points {
			if val, ok := point.Payload[payloadIDKey]; ok {
				if kw, ok := val.Kind.(*qdrant.Value_StringValue); ok {
					existing[kw.StringValue] = true
				}
			}
			if limit > 0 && len(existing) >= limit {
				return existing, nil
			}
		}
	}
	return existing, nil
}

// Add upserts records in batches.
func (s *QdrantStore) Add(ctx context.Context, req AddRequest) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Add")
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

	err := runBatches(ctx, req, s.shared.config.BatchSize, s.upsertBatch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// upsertBatch embeds (when needed) and upserts one batch of points.
func (s *QdrantStore) upsertBatch(ctx context.Context, batch AddRequest) error {
	embeddings := batch.Embeddings
	if embeddings == nil {
		var err error
		embeddings, err = s.shared.embedder.EmbedDocuments(ctx, batch.Texts)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
	}

	points := make([]*qdrant.PointStruct, len(batch.IDs))
	for i := range batch.IDs {
		if len(embeddings[i]) != s.shared.dim {
			return &DimensionMismatchError{Expected: s.shared.dim, Actual: len(embeddings[i])}
		}

		payload := map[string]*qdrant.Value{
			payloadTextKey: qdrant.NewValueString(batch.Texts[i]),
			payloadIDKey:   qdrant.NewValueString(batch.IDs[i]),
		}
		if batch.Metadatas != nil {
			for k, v := range batch.Metadatas[i] {
				payload[k] = scalarToQdrantValue(v)
			}
		}

		// Point ids must be UUIDs; content-hash ids are derived into a
		// deterministic UUID so re-adding the same chunk stays idempotent.
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(deterministicPointID(batch.IDs[i])),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	return s.shared.retry(ctx, "upsert", func() error {
		_, err := s.shared.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.physical,
			Points:         points,
		})
		return translateQdrantError(err, s.shared.dim)
	})
}

// Query runs a similarity search with the compiled filter.
func (s *QdrantStore) Query(ctx context.Context, req QueryRequest) ([]QueryResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
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

	var filter *qdrant.Filter
	if conditions := compileQdrantConditions(BuildFilter(req.Where)); len(conditions) > 0 {
		filter = &qdrant.Filter{Must: conditions}
	}

	var scored []*qdrant.ScoredPoint
	err := s.shared.retry(ctx, "query", func() error {
		res, err := s.shared.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.physical,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(req.NResults)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return translateQdrantError(err, s.shared.dim)
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]QueryResult, len(scored))
	for i, point := range scored {
		result := QueryResult{Score: point.Score, Metadata: make(map[string]any)}
		for k, v := range point.Payload {
			if k == payloadTextKey {
				result.Context = v.GetStringValue()
				continue
			}
			result.Metadata[k] = qdrantValueToScalar(v)
		}
		if req.Citations {
			if _, err := result.Citation(); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("record %s: %w", point.Id.String(), err)
			}
		}
		results[i] = result
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Count returns the exact point count of the active collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if err := s.shared.checkReady(); err != nil {
		return 0, err
	}
	var count uint64
	err := s.shared.retry(ctx, "count", func() error {
		res, err := s.shared.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.physical,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = res
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteWhere deletes all points matching the filter server-side.
func (s *QdrantStore) DeleteWhere(ctx context.Context, where map[string]any) error {
	if err := s.shared.checkReady(); err != nil {
		return err
	}
	if len(where) == 0 {
		return fmt.Errorf("%w: delete filter cannot be empty", ErrInvalidConfig)
	}

	conditions := compileQdrantConditions(BuildFilter(where))
	return s.shared.retry(ctx, "delete", func() error {
		_, err := s.shared.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.physical,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{Must: conditions},
				},
			},
		})
		return err
	})
}

// Reset drops the active collection and recreates it with the same schema.
func (s *QdrantStore) Reset(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Reset")
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

	if err := sh.client.DeleteCollection(ctx, s.physical); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: dropping collection %s: %v", ErrBackendUnavailable, s.physical, err)
	}
	if err := sh.ensureCollection(ctx, s.physical); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	sh.logger.Info("qdrant collection reset", zap.String("collection", s.physical))
	return nil
}

// SetCollectionName switches the active collection, creating it on first use.
// Not safe for concurrent use; see WithCollection.
func (s *QdrantStore) SetCollectionName(ctx context.Context, name string) error {
	sh := s.shared
	if err := sh.checkReady(); err != nil {
		return err
	}
	physical := PhysicalCollectionName(name, sh.dim, sh.naming)
	if err := sh.ensureCollection(ctx, physical); err != nil {
		return err
	}
	s.physical = physical
	return nil
}

// WithCollection returns a handle scoped to the named collection. The
// physical name binds the dimension known at creation; take handles after
// Initialize.
func (s *QdrantStore) WithCollection(name string) Store {
	sh := s.shared
	sh.mu.RLock()
	dim := sh.dim
	sh.mu.RUnlock()
	return &QdrantStore{
		shared:   sh,
		physical: PhysicalCollectionName(name, dim, sh.naming),
	}
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.shared.client != nil {
		return s.shared.client.Close()
	}
	return nil
}

// deterministicPointID derives the UUID point id from a content-hash id.
func deterministicPointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// compileQdrantConditions compiles the filter tree into Must conditions.
// Must is Qdrant's AND; wrapping every leaf keeps multi-key filters
// conjunctive rather than whatever the backend would default to.
func compileQdrantConditions(f Filter) []*qdrant.Condition {
	leaves := FlattenEq(f)
	conditions := make([]*qdrant.Condition, 0, len(leaves))
	for _, eq := range leaves {
		switch v := eq.Value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatchKeyword(eq.Field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(eq.Field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(eq.Field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(eq.Field, v))
		default:
			conditions = append(conditions, qdrant.NewMatchKeyword(eq.Field, scalarString(v)))
		}
	}
	return conditions
}

// scalarToQdrantValue converts caller metadata to a payload value.
func scalarToQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(scalarString(val))
	}
}

// qdrantValueToScalar converts a payload value back to caller metadata.
func qdrantValueToScalar(v *qdrant.Value) any {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

// translateQdrantError maps Qdrant's dimension complaints onto the typed
// error so the raw gRPC status never reaches callers.
func translateQdrantError(err error, expected int) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		msg := st.Message()
		if strings.Contains(msg, "dim") || strings.Contains(msg, "Vector dimension") {
			return &DimensionMismatchError{Expected: expected, Actual: -1}
		}
	}
	return err
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
