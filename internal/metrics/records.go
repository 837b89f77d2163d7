package metrics

import (
	"context"
	"time"

	"github.com/fitpulse/sync-engine/internal/remote"
)

// instrumentedRecords decorates a RecordStore with write counters and a
// latency histogram. Reads pass through uninstrumented; the write path is
// the one that matters for sync health.
type instrumentedRecords struct {
	next remote.RecordStore
	m    *Metrics
}

// WrapRecords returns a RecordStore that observes every write on the
// remote_writes_total and remote_write_seconds instruments.
func (m *Metrics) WrapRecords(next remote.RecordStore) remote.RecordStore {
	return &instrumentedRecords{next: next, m: m}
}

func (ir *instrumentedRecords) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	start := time.Now()
	err := ir.next.Upsert(ctx, collection, key, fields)
	ir.observe(collection, start, err)
	return err
}

func (ir *instrumentedRecords) Query(ctx context.Context, collection string, pred remote.Predicate, limit int) ([]remote.Record, error) {
	return ir.next.Query(ctx, collection, pred, limit)
}

func (ir *instrumentedRecords) Delete(ctx context.Context, collection, key string) error {
	start := time.Now()
	err := ir.next.Delete(ctx, collection, key)
	ir.observe(collection, start, err)
	return err
}

func (ir *instrumentedRecords) observe(collection string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ir.m.RemoteWrites.WithLabelValues(collection, outcome).Inc()
	ir.m.RemoteWriteSeconds.Observe(time.Since(start).Seconds())
}
