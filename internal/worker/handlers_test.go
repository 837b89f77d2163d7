package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/remote"
	"github.com/fitpulse/sync-engine/internal/worker"
)

func defaultRegistry(records *remote.MockRecordStore) *worker.Registry {
	r := worker.NewRegistry()
	worker.RegisterDefaults(r, records, ratelimiter.New(1000))
	return r
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDispatch_UnknownKindIsPermanentFailure(t *testing.T) {
	r := defaultRegistry(remote.NewMockRecordStore())

	err := r.Dispatch(context.Background(), domain.QueueItem{ID: "x", Kind: domain.Kind("bogus")})
	if !errors.Is(err, domain.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestDispatch_RecordSaveWritesActivity(t *testing.T) {
	records := remote.NewMockRecordStore()
	r := defaultRegistry(records)

	ev := domain.ActivityEvent{
		ID:         "ev-1",
		SubjectKey: "alice",
		StartTime:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC),
		Duration:   30 * time.Minute,
	}
	item := domain.QueueItem{
		ID:      remote.ActivityKey("alice", "ev-1"),
		Kind:    domain.KindRecordSave,
		Payload: mustMarshal(t, domain.RecordSavePayload{Event: ev, Derived: domain.DerivedValues{Points: 30, Rewardable: true}}),
	}

	if err := r.Dispatch(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	rec, ok := records.Get(remote.CollectionActivities, remote.ActivityKey("alice", "ev-1"))
	if !ok {
		t.Fatal("expected activity record")
	}
	if rec.Fields["points"] != 30 {
		t.Fatalf("expected points carried through, got %v", rec.Fields["points"])
	}
}

func TestDispatch_RecordSaveIsIdempotent(t *testing.T) {
	records := remote.NewMockRecordStore()
	r := defaultRegistry(records)

	item := domain.QueueItem{
		ID:   remote.ActivityKey("alice", "ev-1"),
		Kind: domain.KindRecordSave,
		Payload: mustMarshal(t, domain.RecordSavePayload{
			Event: domain.ActivityEvent{ID: "ev-1", SubjectKey: "alice"},
		}),
	}

	ctx := context.Background()
	if err := r.Dispatch(ctx, item); err != nil {
		t.Fatal(err)
	}
	if err := r.Dispatch(ctx, item); err != nil {
		t.Fatal(err)
	}
	if records.Len() != 1 {
		t.Fatalf("re-delivery must converge on one record, got %d", records.Len())
	}
}

func TestDispatch_MalformedPayloadFails(t *testing.T) {
	r := defaultRegistry(remote.NewMockRecordStore())

	err := r.Dispatch(context.Background(), domain.QueueItem{
		ID:      "x",
		Kind:    domain.KindRecordSave,
		Payload: []byte("{not json"),
	})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDispatch_StatUpdateWritesSnapshot(t *testing.T) {
	records := remote.NewMockRecordStore()
	r := defaultRegistry(records)

	item := domain.QueueItem{
		ID:   remote.StatsKey("alice"),
		Kind: domain.KindDerivedStatUpdate,
		Payload: mustMarshal(t, domain.StatUpdatePayload{
			Snapshot: domain.UserStatsSnapshot{SubjectKey: "alice", TotalPoints: 120},
		}),
	}

	if err := r.Dispatch(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	rec, ok := records.Get(remote.CollectionUserStats, remote.StatsKey("alice"))
	if !ok || rec.Fields["total_points"] != 120 {
		t.Fatalf("expected stats snapshot written, got %+v ok=%v", rec.Fields, ok)
	}
}

func TestDispatch_LinkUpdateAddAndRemove(t *testing.T) {
	records := remote.NewMockRecordStore()
	r := defaultRegistry(records)
	ctx := context.Background()

	add := domain.QueueItem{
		ID:      remote.LinkKey("alice", "follows", "bob"),
		Kind:    domain.KindLinkUpdate,
		Payload: mustMarshal(t, domain.LinkUpdatePayload{SubjectKey: "alice", Relation: "follows", TargetKey: "bob"}),
	}
	if err := r.Dispatch(ctx, add); err != nil {
		t.Fatal(err)
	}
	if _, ok := records.Get(remote.CollectionLinks, remote.LinkKey("alice", "follows", "bob")); !ok {
		t.Fatal("expected link record")
	}

	remove := domain.QueueItem{
		ID:      remote.LinkKey("alice", "follows", "bob"),
		Kind:    domain.KindLinkUpdate,
		Payload: mustMarshal(t, domain.LinkUpdatePayload{SubjectKey: "alice", Relation: "follows", TargetKey: "bob", Remove: true}),
	}
	if err := r.Dispatch(ctx, remove); err != nil {
		t.Fatal(err)
	}
	if _, ok := records.Get(remote.CollectionLinks, remote.LinkKey("alice", "follows", "bob")); ok {
		t.Fatal("expected link record deleted")
	}

	// Removing a link that is already gone is not an error.
	if err := r.Dispatch(ctx, remove); err != nil {
		t.Fatalf("removing an absent link must succeed, got %v", err)
	}
}

func TestDispatch_FeedPostAndNotification(t *testing.T) {
	records := remote.NewMockRecordStore()
	r := defaultRegistry(records)
	ctx := context.Background()

	post := domain.QueueItem{
		ID:   remote.FeedPostKey("alice", "ev-1"),
		Kind: domain.KindFeedPost,
		Payload: mustMarshal(t, domain.FeedPostPayload{
			SubjectKey: "alice", ActivityID: "ev-1", ActivityType: "run", Message: "alice completed a run", Points: 55,
		}),
	}
	if err := r.Dispatch(ctx, post); err != nil {
		t.Fatal(err)
	}
	rec, ok := records.Get(remote.CollectionFeedPosts, remote.FeedPostKey("alice", "ev-1"))
	if !ok || rec.Fields["points"] != 55 {
		t.Fatalf("expected feed post, got %+v ok=%v", rec.Fields, ok)
	}

	note := domain.QueueItem{
		ID:   remote.NotificationKey("alice", "ev-1"),
		Kind: domain.KindNotificationDispatch,
		Payload: mustMarshal(t, domain.NotificationPayload{
			SubjectKey: "alice", ActivityID: "ev-1", Title: "Nice run!", Body: "You earned 55 points",
		}),
	}
	if err := r.Dispatch(ctx, note); err != nil {
		t.Fatal(err)
	}
	if _, ok := records.Get(remote.CollectionNotifications, remote.NotificationKey("alice", "ev-1")); !ok {
		t.Fatal("expected notification record")
	}
}
