package store

import (
	"context"
	"fmt"
)

// LoadProcessed returns the remembered event IDs, oldest first.
func (s *Store) LoadProcessed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id FROM processed_events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddProcessed records ids and trims the table back down to cap entries,
// dropping the oldest. Returns the IDs that were trimmed so the in-memory
// set can forget them too.
func (s *Store) AddProcessed(ctx context.Context, ids []string, cap int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin processed tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed_events (event_id) VALUES (?)`, id); err != nil {
			return nil, fmt.Errorf("insert processed id %s: %w", id, err)
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT event_id FROM processed_events
		WHERE seq <= (SELECT MAX(seq) FROM processed_events) - ?
		ORDER BY seq ASC`, cap)
	if err != nil {
		return nil, fmt.Errorf("find trimmable processed ids: %w", err)
	}
	var trimmed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trimmable id: %w", err)
		}
		trimmed = append(trimmed, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(trimmed) > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM processed_events
			WHERE seq <= (SELECT MAX(seq) FROM processed_events) - ?`, cap); err != nil {
			return nil, fmt.Errorf("trim processed ids: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit processed tx: %w", err)
	}
	return trimmed, nil
}
