package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// SavePending writes one pending item row, replacing any previous row with
// the same id. Called by the queue after every mutation of that item.
func (s *Store) SavePending(ctx context.Context, item domain.QueueItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO queue_items
		  (id, area, kind, payload, attempts, last_attempt_at, priority, created_at, moved_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		item.ID, areaPending, string(item.Kind), item.Payload,
		item.Attempts, item.LastAttemptAt.UnixNano(), string(item.Priority), item.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save pending item %s: %w", item.ID, err)
	}
	return nil
}

// SaveDeadLetter writes one dead-letter row. The pending row with the same
// id, if any, is removed in the same statement batch so an item never exists
// in both areas.
func (s *Store) SaveDeadLetter(ctx context.Context, d domain.DeadLetterItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dead-letter tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue_items WHERE area = ? AND id = ?`, areaPending, d.ID); err != nil {
		return fmt.Errorf("remove pending row %s: %w", d.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO queue_items
		  (id, area, kind, payload, attempts, last_attempt_at, priority, created_at, moved_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, areaDeadLetter, string(d.Kind), d.Payload,
		d.Attempts, d.LastAttemptAt.UnixNano(), string(d.Priority), d.CreatedAt.UnixNano(),
		d.MovedAt.UnixNano(), d.Reason,
	); err != nil {
		return fmt.Errorf("save dead-letter item %s: %w", d.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dead-letter tx: %w", err)
	}
	return nil
}

func (s *Store) DeletePending(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE area = ? AND id = ?`, areaPending, id); err != nil {
		return fmt.Errorf("delete pending item %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteDeadLetter(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE area = ? AND id = ?`, areaDeadLetter, id); err != nil {
		return fmt.Errorf("delete dead-letter item %s: %w", id, err)
	}
	return nil
}

// LoadPending returns every pending row. Order is not significant here; the
// queue re-sorts by its own comparator on startup.
func (s *Store) LoadPending(ctx context.Context) ([]domain.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, last_attempt_at, priority, created_at
		FROM queue_items WHERE area = ?`, areaPending)
	if err != nil {
		return nil, fmt.Errorf("load pending items: %w", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LoadDeadLetters returns every dead-letter row, oldest moved first.
func (s *Store) LoadDeadLetters(ctx context.Context) ([]domain.DeadLetterItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, last_attempt_at, priority, created_at, moved_at, reason
		FROM queue_items WHERE area = ? ORDER BY moved_at ASC`, areaDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("load dead-letter items: %w", err)
	}
	defer rows.Close()

	var items []domain.DeadLetterItem
	for rows.Next() {
		var (
			d       domain.DeadLetterItem
			kind    string
			prio    string
			lastAt  int64
			created int64
			movedAt sql.NullInt64
			reason  sql.NullString
		)
		if err := rows.Scan(&d.ID, &kind, &d.Payload, &d.Attempts, &lastAt, &prio, &created, &movedAt, &reason); err != nil {
			return nil, fmt.Errorf("scan dead-letter item: %w", err)
		}
		d.Kind = domain.Kind(kind)
		d.Priority = domain.Priority(prio)
		d.LastAttemptAt = time.Unix(0, lastAt)
		d.CreatedAt = time.Unix(0, created)
		if movedAt.Valid {
			d.MovedAt = time.Unix(0, movedAt.Int64)
		}
		d.Reason = reason.String
		items = append(items, d)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (domain.QueueItem, error) {
	var (
		item    domain.QueueItem
		kind    string
		prio    string
		lastAt  int64
		created int64
	)
	if err := r.Scan(&item.ID, &kind, &item.Payload, &item.Attempts, &lastAt, &prio, &created); err != nil {
		return domain.QueueItem{}, fmt.Errorf("scan queue item: %w", err)
	}
	item.Kind = domain.Kind(kind)
	item.Priority = domain.Priority(prio)
	item.LastAttemptAt = time.Unix(0, lastAt)
	item.CreatedAt = time.Unix(0, created)
	return item, nil
}
