// Package ingest implements the source -> load -> chunk -> dedup -> store
// pipeline. Chunk IDs are content hashes, and the existence check runs
// before any embedding work so re-ingesting the same source costs no
// embedder calls.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/ledger"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

const defaultWorkers = 4

// Options configures a Pipeline. Zero values get sensible defaults; Chunker
// is required.
type Options struct {
	Loader  Loader
	Chunker Chunker
	// Ledger, when set, records source hashes for cross-run dedup.
	Ledger *ledger.Ledger
	Logger *zap.Logger
	// Workers bounds concurrent source processing. Defaults to 4.
	Workers int
}

// Pipeline ingests sources into a vector store.
type Pipeline struct {
	store   vectorstore.Store
	loader  Loader
	chunker Chunker
	ledger  *ledger.Ledger
	logger  *zap.Logger
	workers int
}

// Result reports the outcome for one source. Err is set when that source
// failed; other sources are unaffected.
type Result struct {
	Source  Source
	Added   int
	Skipped int
	Err     error
}

// New builds a Pipeline over an initialized store.
func New(store vectorstore.Store, opts Options) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if opts.Loader == nil {
		opts.Loader = DefaultLoader{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Pipeline{
		store:   store,
		loader:  opts.Loader,
		chunker: opts.Chunker,
		ledger:  opts.Ledger,
		logger:  opts.Logger,
		workers: opts.Workers,
	}, nil
}

// Ingest processes sources with a bounded worker pool and returns one Result
// per source, in input order. It only returns an error when the context is
// cancelled; per-source failures are carried in the results.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source) ([]Result, error) {
	results := make([]Result, len(sources))

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, src Source) {
			defer wg.Done()
			defer func() { <-sem }()
			added, skipped, err := p.ingestOne(ctx, src)
			results[i] = Result{Source: src, Added: added, Skipped: skipped, Err: err}
		}(i, src)
	}
	wg.Wait()

	return results, ctx.Err()
}

// IngestOne processes a single source synchronously.
func (p *Pipeline) IngestOne(ctx context.Context, src Source) (Result, error) {
	added, skipped, err := p.ingestOne(ctx, src)
	return Result{Source: src, Added: added, Skipped: skipped, Err: err}, err
}

func (p *Pipeline) ingestOne(ctx context.Context, src Source) (added, skipped int, err error) {
	tracer := otel.Tracer("ragstore.ingest")
	ctx, span := tracer.Start(ctx, "ingest.source")
	defer span.End()
	span.SetAttributes(attribute.String("source.type", src.Type))

	doc, err := p.loader.Load(ctx, src)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, fmt.Errorf("loading source: %w", err)
	}

	docHash := hashString(doc.Content)

	// Cross-run dedup: a source whose full content was already ingested and
	// uploaded is skipped before chunking.
	if p.ledger != nil {
		seen, err := p.ledger.Exists(ctx, docHash)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, 0, err
		}
		if seen {
			p.logger.Debug("source already ingested, skipping",
				zap.String("source", doc.SourceID),
				zap.String("hash", docHash))
			span.SetStatus(codes.Ok, "")
			return 0, 0, nil
		}
	}

	chunks, err := p.chunker.Chunk(doc.Content)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, fmt.Errorf("chunking source: %w", err)
	}
	if len(chunks) == 0 {
		span.SetStatus(codes.Ok, "")
		return 0, 0, nil
	}

	// Chunk ID covers both text and origin, so the same sentence from two
	// sources stays distinct while re-adds of the same source collapse.
	ids := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		id := hashString(chunk + doc.SourceID)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		texts = append(texts, chunk)
	}

	existing, err := p.store.GetExisting(ctx, ids, nil, 0)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, fmt.Errorf("checking existing chunks: %w", err)
	}

	var req vectorstore.AddRequest
	for i, id := range ids {
		if existing[id] {
			skipped++
			continue
		}
		meta := make(map[string]any, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[vectorstore.MetadataURL] = doc.SourceID
		meta[vectorstore.MetadataDocID] = docHash
		meta["hash"] = id
		req.IDs = append(req.IDs, id)
		req.Texts = append(req.Texts, texts[i])
		req.Metadatas = append(req.Metadatas, meta)
	}

	if p.ledger != nil {
		metaJSON, _ := json.Marshal(src.Metadata)
		if err := p.ledger.Record(ctx, ledger.Entry{
			Hash:         docHash,
			SourceType:   src.Type,
			SourceValue:  doc.SourceID,
			MetadataJSON: string(metaJSON),
		}); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, skipped, err
		}
	}

	if req.Len() > 0 {
		if err := p.store.Add(ctx, req); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, skipped, fmt.Errorf("adding chunks: %w", err)
		}
		added = req.Len()
	}

	if p.ledger != nil {
		if err := p.ledger.MarkUploaded(ctx, docHash); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return added, skipped, err
		}
	}

	p.logger.Info("source ingested",
		zap.String("source", doc.SourceID),
		zap.Int("added", added),
		zap.Int("skipped", skipped))
	span.SetAttributes(attribute.Int("chunks.added", added), attribute.Int("chunks.skipped", skipped))
	span.SetStatus(codes.Ok, "")
	return added, skipped, nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
