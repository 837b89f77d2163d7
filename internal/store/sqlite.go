// Package store owns the local durable state: one sqlite database holding
// the retry queue items (one row per item), the per-stream sync cursors,
// and the processed-event-ID guard.
//
// Ownership is strict: the queue_items table is touched only by the retry
// queue, the cursor and processed tables only by the fetcher. The store
// exposes plain row operations; all in-memory bookkeeping lives in the
// owning component.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
  id              TEXT NOT NULL,
  area            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  payload         BLOB,
  attempts        INTEGER NOT NULL,
  last_attempt_at INTEGER NOT NULL,
  priority        TEXT NOT NULL,
  created_at      INTEGER NOT NULL,
  moved_at        INTEGER,
  reason          TEXT,
  PRIMARY KEY (area, id)
);
CREATE INDEX IF NOT EXISTS idx_queue_items_area_created
  ON queue_items(area, created_at);

CREATE TABLE IF NOT EXISTS sync_cursors (
  stream     TEXT PRIMARY KEY,
  token      TEXT NOT NULL,
  represents INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_events (
  seq      INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL UNIQUE
);
`

// Areas of the queue_items table. One durable record per item in either
// area; a crash mid-write loses at most the row being written.
const (
	areaPending    = "pending"
	areaDeadLetter = "dead"
)

// Store wraps the sqlite handle shared by the item, cursor, and processed
// row operations.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database at path, applies the
// durability pragmas, and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer owns every table; more connections only add lock churn.
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous=FULL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
