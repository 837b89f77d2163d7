package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// LoadCursor returns the cursor for stream, or ok=false on first run.
func (s *Store) LoadCursor(ctx context.Context, stream string) (domain.SyncCursor, bool, error) {
	var (
		c          domain.SyncCursor
		represents int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, represents FROM sync_cursors WHERE stream = ?`, stream,
	).Scan(&c.Token, &represents)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncCursor{}, false, nil
	}
	if err != nil {
		return domain.SyncCursor{}, false, fmt.Errorf("load cursor %s: %w", stream, err)
	}
	c.Stream = stream
	c.Represents = time.Unix(0, represents)
	return c, true, nil
}

// SaveCursor replaces the cursor row for its stream in a single statement.
// The fetcher calls this once per fully-handled batch, never mid-batch.
func (s *Store) SaveCursor(ctx context.Context, c domain.SyncCursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_cursors (stream, token, represents, updated_at)
		VALUES (?, ?, ?, ?)`,
		c.Stream, c.Token, c.Represents.UnixNano(), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", c.Stream, err)
	}
	return nil
}

// ResetCursor removes the cursor for stream, forcing the next fetch to fall
// back to the sync window policy. Exposed for the explicit-reset path only.
func (s *Store) ResetCursor(ctx context.Context, stream string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_cursors WHERE stream = ?`, stream); err != nil {
		return fmt.Errorf("reset cursor %s: %w", stream, err)
	}
	return nil
}
