package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRecordStore struct {
	pool *pgxpool.Pool
}

// NewPgRecordStore returns a RecordStore backed by PostgreSQL. Records live
// in a single table keyed by (collection, key) with a jsonb field document;
// upserts are last-writer-wins.
func NewPgRecordStore(pool *pgxpool.Pool) RecordStore {
	return &pgRecordStore{pool: pool}
}

func (r *pgRecordStore) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO records (collection, key, fields, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key)
		DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`,
		collection, key, fields, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (r *pgRecordStore) Query(ctx context.Context, collection string, pred Predicate, limit int) ([]Record, error) {
	query := `
		SELECT collection, key, fields, updated_at
		FROM records WHERE collection = $1`
	args := []any{collection}

	if pred.Field != "" {
		query += fmt.Sprintf(" AND fields->>$%d = $%d", len(args)+1, len(args)+2)
		args = append(args, pred.Field, fmt.Sprint(pred.Value))
	}

	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Collection, &rec.Key, &rec.Fields, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *pgRecordStore) Delete(ctx context.Context, collection, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND key = $2`, collection, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// compile-time check that pgRecordStore implements RecordStore
var _ RecordStore = (*pgRecordStore)(nil)
