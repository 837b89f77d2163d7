package reconciler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/reconciler"
	"github.com/fitpulse/sync-engine/internal/remote"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type counters struct {
	reconciled int
	dropped    int
}

func newReconciler(t *testing.T, records *remote.MockRecordStore, cfg reconciler.Config) (*reconciler.StatsReconciler, *testClock, *counters) {
	t.Helper()
	clock := &testClock{now: start}
	c := &counters{}
	r := reconciler.New(records, ratelimiter.New(1000), cfg, reconciler.Hooks{
		OnReconciled: func() { c.reconciled++ },
		OnDropped:    func() { c.dropped++ },
	}, zap.NewNop())
	r.WithNowFunc(clock.Now)
	return r, clock, c
}

func snap(subject string, points int) domain.UserStatsSnapshot {
	return domain.UserStatsSnapshot{
		SubjectKey:      subject,
		TotalActivities: 1,
		TotalPoints:     points,
		LastActivityAt:  start,
	}
}

// TestFlush_CoalescesLatestSnapshot: three rapid submissions for one subject
// produce a single write carrying the last submitted values.
func TestFlush_CoalescesLatestSnapshot(t *testing.T) {
	records := remote.NewMockRecordStore()
	r, _, c := newReconciler(t, records, reconciler.Config{})

	r.SubmitBatched(snap("alice", 10))
	r.SubmitBatched(snap("alice", 20))
	r.SubmitBatched(snap("alice", 30))
	r.Flush(context.Background())

	if records.UpsertCalls != 1 {
		t.Fatalf("expected 1 coalesced write, got %d", records.UpsertCalls)
	}
	rec, ok := records.Get(remote.CollectionUserStats, remote.StatsKey("alice"))
	if !ok {
		t.Fatal("expected stats record written")
	}
	if rec.Fields["total_points"] != 30 {
		t.Fatalf("expected latest snapshot to win, got points=%v", rec.Fields["total_points"])
	}
	if c.reconciled != 1 {
		t.Fatalf("expected 1 reconciled hook call, got %d", c.reconciled)
	}
}

func TestFlush_EmptyWindowWritesNothing(t *testing.T) {
	records := remote.NewMockRecordStore()
	r, _, _ := newReconciler(t, records, reconciler.Config{})

	r.Flush(context.Background())
	if records.UpsertCalls != 0 {
		t.Fatalf("expected no writes on an empty window, got %d", records.UpsertCalls)
	}
}

// TestFlush_RetriesAfterDelay: a failed write retries on a later flush once
// the linear backoff has elapsed, and succeeds when the store recovers.
func TestFlush_RetriesAfterDelay(t *testing.T) {
	records := remote.NewMockRecordStore()
	cfg := reconciler.Config{BaseDelay: 2 * time.Second, MaxAttempts: 3}
	r, clock, c := newReconciler(t, records, cfg)
	ctx := context.Background()

	key := remote.StatsKey("alice")
	records.FailKeys[key] = errors.New("write rejected")

	r.SubmitBatched(snap("alice", 10))
	r.Flush(ctx)

	if _, retrying := r.PendingKeys(); retrying != 1 {
		t.Fatal("expected snapshot on the retry list after failure")
	}

	// Not yet due: flush must not touch it.
	clock.Advance(time.Second)
	r.Flush(ctx)
	if records.UpsertCalls != 1 {
		t.Fatalf("retry fired before its delay, calls=%d", records.UpsertCalls)
	}

	delete(records.FailKeys, key)
	clock.Advance(2 * time.Second)
	r.Flush(ctx)

	if _, ok := records.Get(remote.CollectionUserStats, key); !ok {
		t.Fatal("expected retried snapshot to be written")
	}
	if c.reconciled != 1 {
		t.Fatalf("expected 1 reconciled hook call, got %d", c.reconciled)
	}
	if _, retrying := r.PendingKeys(); retrying != 0 {
		t.Fatal("expected retry list drained after success")
	}
}

// TestFlush_DropsAfterMaxAttempts: a persistently failing snapshot is dropped
// after the attempt budget rather than retried forever.
func TestFlush_DropsAfterMaxAttempts(t *testing.T) {
	records := remote.NewMockRecordStore()
	cfg := reconciler.Config{BaseDelay: time.Second, MaxAttempts: 3}
	r, clock, c := newReconciler(t, records, cfg)
	ctx := context.Background()

	records.FailKeys[remote.StatsKey("alice")] = errors.New("write rejected")

	r.SubmitBatched(snap("alice", 10))
	for i := 0; i < 5; i++ {
		r.Flush(ctx)
		clock.Advance(10 * time.Second)
	}

	if c.dropped != 1 {
		t.Fatalf("expected exactly 1 dropped snapshot, got %d", c.dropped)
	}
	if records.UpsertCalls != cfg.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxAttempts, records.UpsertCalls)
	}
	if _, retrying := r.PendingKeys(); retrying != 0 {
		t.Fatal("expected retry list empty after drop")
	}
}

// TestFlush_NewerSnapshotSupersedesRetry: a fresh submission for a retrying
// subject discards the stale retry entry entirely.
func TestFlush_NewerSnapshotSupersedesRetry(t *testing.T) {
	records := remote.NewMockRecordStore()
	r, clock, _ := newReconciler(t, records, reconciler.Config{BaseDelay: time.Second, MaxAttempts: 3})
	ctx := context.Background()

	key := remote.StatsKey("alice")
	records.FailKeys[key] = errors.New("write rejected")
	r.SubmitBatched(snap("alice", 10))
	r.Flush(ctx)

	delete(records.FailKeys, key)
	r.SubmitBatched(snap("alice", 99))
	clock.Advance(time.Minute)
	r.Flush(ctx)

	rec, ok := records.Get(remote.CollectionUserStats, key)
	if !ok {
		t.Fatal("expected record written")
	}
	if rec.Fields["total_points"] != 99 {
		t.Fatalf("expected newer snapshot to win, got points=%v", rec.Fields["total_points"])
	}
	// One failed attempt plus one successful write of the superseding snapshot.
	if records.UpsertCalls != 2 {
		t.Fatalf("expected stale retry discarded, calls=%d", records.UpsertCalls)
	}
	if _, retrying := r.PendingKeys(); retrying != 0 {
		t.Fatal("expected retry list empty after supersede")
	}
}

func TestSubmitImmediate_PropagatesErrorAndQueuesRetry(t *testing.T) {
	records := remote.NewMockRecordStore()
	r, clock, _ := newReconciler(t, records, reconciler.Config{BaseDelay: time.Second, MaxAttempts: 3})
	ctx := context.Background()

	key := remote.StatsKey("alice")
	records.FailKeys[key] = errors.New("write rejected")

	if err := r.SubmitImmediate(ctx, snap("alice", 10)); err == nil {
		t.Fatal("expected error from immediate write")
	}
	if _, retrying := r.PendingKeys(); retrying != 1 {
		t.Fatal("expected failed immediate write on the retry list")
	}

	delete(records.FailKeys, key)
	clock.Advance(time.Minute)
	r.Flush(ctx)
	if _, ok := records.Get(remote.CollectionUserStats, key); !ok {
		t.Fatal("expected failed immediate write to recover via retry")
	}
}

func TestSubmitImmediate_WritesSynchronously(t *testing.T) {
	records := remote.NewMockRecordStore()
	r, _, c := newReconciler(t, records, reconciler.Config{})

	if err := r.SubmitImmediate(context.Background(), snap("bob", 42)); err != nil {
		t.Fatal(err)
	}
	rec, ok := records.Get(remote.CollectionUserStats, remote.StatsKey("bob"))
	if !ok || rec.Fields["total_points"] != 42 {
		t.Fatalf("expected immediate write, got %+v ok=%v", rec.Fields, ok)
	}
	if c.reconciled != 1 {
		t.Fatalf("expected reconciled hook call, got %d", c.reconciled)
	}
}
