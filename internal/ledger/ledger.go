// Package ledger tracks ingested sources in a local SQLite database.
//
// The ledger is independent of the vector store: it records which
// (pipeline, content hash) pairs have been seen and whether their upload
// completed, making re-runs of ingestion against the same source idempotent
// and resumable.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a hash has no ledger row.
var ErrNotFound = errors.New("ledger entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS data_sources (
    pipeline_id   TEXT NOT NULL,
    hash          TEXT NOT NULL,
    source_type   TEXT NOT NULL,
    source_value  TEXT NOT NULL,
    metadata_json TEXT,
    is_uploaded   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (pipeline_id, hash)
);`

// Entry is one ledger row.
type Entry struct {
	Hash         string
	SourceType   string
	SourceValue  string
	MetadataJSON string
	IsUploaded   bool
}

// Ledger is a per-pipeline view over the data_sources table.
type Ledger struct {
	db         *sql.DB
	pipelineID string
}

// Open opens (creating if needed) the ledger database at path, scoped to
// pipelineID. Use ":memory:" for an ephemeral ledger.
func Open(path, pipelineID string) (*Ledger, error) {
	if path == "" {
		path = ":memory:"
	}
	if pipelineID == "" {
		return nil, fmt.Errorf("pipeline id required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, pipelineID: pipelineID}, nil
}

// Record inserts an entry if its hash is unseen for this pipeline. A
// re-record of a known hash is a no-op, which is what makes re-running
// ingestion idempotent.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO data_sources
		 (pipeline_id, hash, source_type, source_value, metadata_json, is_uploaded)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		l.pipelineID, e.Hash, e.SourceType, e.SourceValue, e.MetadataJSON,
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Hash, err)
	}
	return nil
}

// Exists reports whether a hash has a fully uploaded ledger row for this
// pipeline. Rows whose upload never completed do not count, so a source
// that failed mid-ingestion is retried on the next run instead of being
// mistaken for a dedup hit.
func (l *Ledger) Exists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM data_sources WHERE pipeline_id = ? AND hash = ? AND is_uploaded = 1`,
		l.pipelineID, hash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", hash, err)
	}
	return true, nil
}

// MarkUploaded flips is_uploaded for a hash after the store write succeeds.
func (l *Ledger) MarkUploaded(ctx context.Context, hash string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE data_sources SET is_uploaded = 1 WHERE pipeline_id = ? AND hash = ?`,
		l.pipelineID, hash,
	)
	if err != nil {
		return fmt.Errorf("marking %s uploaded: %w", hash, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return nil
}

// Pending returns entries recorded but not yet marked uploaded, for resuming
// an interrupted run.
func (l *Ledger) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT hash, source_type, source_value, COALESCE(metadata_json, ''), is_uploaded
		 FROM data_sources WHERE pipeline_id = ? AND is_uploaded = 0`,
		l.pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var uploaded int
		if err := rows.Scan(&e.Hash, &e.SourceType, &e.SourceValue, &e.MetadataJSON, &uploaded); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.IsUploaded = uploaded != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
