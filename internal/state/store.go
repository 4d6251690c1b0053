// Package state implements the per-ingestor progress store: a
// single-table embedded relational store keyed by ingestor id.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"convoindex/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingestor_states (
	ingestor_id TEXT PRIMARY KEY,
	last_timestamp INTEGER NOT NULL DEFAULT 0,
	metadata_json TEXT NOT NULL DEFAULT '{}'
);
`

// Store is the embedded SQLite-backed state store. The *sql.DB pool
// is shared across goroutines; the driver serializes access to the
// underlying file, giving the "one connection per thread" isolation
// the design calls for without hand-rolled locking here.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if absent) the SQLite file at path and ensures
// the ingestor_states table exists.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrStateStore, path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", model.ErrStateStore, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the ingestor's state, or the zero state if the row is
// absent. Malformed metadata JSON is logged and treated as empty.
func (s *Store) Get(ctx context.Context, ingestorID string) (model.IngestorState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_timestamp, metadata_json FROM ingestor_states WHERE ingestor_id = ?`, ingestorID)

	var lastTimestamp int64
	var metadataJSON string
	if err := row.Scan(&lastTimestamp, &metadataJSON); err != nil {
		if err == sql.ErrNoRows {
			return model.ZeroState(), nil
		}
		return model.IngestorState{}, fmt.Errorf("%w: get %s: %v", model.ErrStateStore, ingestorID, err)
	}

	meta := map[string]any{}
	if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
		s.log.Warn().Str("ingestor_id", ingestorID).Err(err).Msg("malformed ingestor metadata json, treating as empty")
		meta = map[string]any{}
	}
	return model.IngestorState{LastTimestamp: lastTimestamp, Metadata: meta}, nil
}

// Set upserts the full state for an ingestor.
func (s *Store) Set(ctx context.Context, ingestorID string, lastTimestamp int64, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata for %s: %v", model.ErrStateStore, ingestorID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingestor_states (ingestor_id, last_timestamp, metadata_json) VALUES (?, ?, ?)
		ON CONFLICT(ingestor_id) DO UPDATE SET last_timestamp = excluded.last_timestamp, metadata_json = excluded.metadata_json
	`, ingestorID, lastTimestamp, string(raw))
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", model.ErrStateStore, ingestorID, err)
	}
	return nil
}

// UpdateMetadata merges patch into the ingestor's existing metadata,
// leaving last_timestamp untouched. The connection DSN opens every
// transaction with BEGIN IMMEDIATE (_txlock=immediate), so this
// read-modify-write is race-free against concurrent callers.
func (s *Store) UpdateMetadata(ctx context.Context, ingestorID string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx for %s: %v", model.ErrStateStore, ingestorID, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT last_timestamp, metadata_json FROM ingestor_states WHERE ingestor_id = ?`, ingestorID)
	var lastTimestamp int64
	var metadataJSON string
	existing := map[string]any{}
	switch err := row.Scan(&lastTimestamp, &metadataJSON); err {
	case nil:
		if jerr := json.Unmarshal([]byte(metadataJSON), &existing); jerr != nil {
			s.log.Warn().Str("ingestor_id", ingestorID).Err(jerr).Msg("malformed ingestor metadata json, treating as empty")
			existing = map[string]any{}
		}
	case sql.ErrNoRows:
		lastTimestamp = 0
	default:
		return fmt.Errorf("%w: update_metadata read %s: %v", model.ErrStateStore, ingestorID, err)
	}

	for k, v := range patch {
		existing[k] = v
	}
	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata for %s: %v", model.ErrStateStore, ingestorID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingestor_states (ingestor_id, last_timestamp, metadata_json) VALUES (?, ?, ?)
		ON CONFLICT(ingestor_id) DO UPDATE SET metadata_json = excluded.metadata_json
	`, ingestorID, lastTimestamp, string(raw)); err != nil {
		return fmt.Errorf("%w: update_metadata write %s: %v", model.ErrStateStore, ingestorID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit update_metadata %s: %v", model.ErrStateStore, ingestorID, err)
	}
	return nil
}

// ListIngestors returns every known ingestor id.
func (s *Store) ListIngestors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ingestor_id FROM ingestor_states ORDER BY ingestor_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list_ingestors: %v", model.ErrStateStore, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: list_ingestors scan: %v", model.ErrStateStore, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an ingestor's state row.
func (s *Store) Delete(ctx context.Context, ingestorID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ingestor_states WHERE ingestor_id = ?`, ingestorID); err != nil {
		return fmt.Errorf("%w: delete %s: %v", model.ErrStateStore, ingestorID, err)
	}
	return nil
}
