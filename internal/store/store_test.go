package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id string) domain.QueueItem {
	return domain.QueueItem{
		ID:            id,
		Kind:          domain.KindRecordSave,
		Payload:       []byte(`{"k":"v"}`),
		Attempts:      2,
		LastAttemptAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Priority:      domain.PriorityHigh,
		CreatedAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStore_PendingRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	want := testItem("item-1")
	if err := s.SavePending(ctx, want); err != nil {
		t.Fatal(err)
	}

	items, err := s.LoadPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	got := items[0]
	if got.ID != want.ID || got.Kind != want.Kind || got.Attempts != want.Attempts ||
		got.Priority != want.Priority || string(got.Payload) != string(want.Payload) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.LastAttemptAt.Equal(want.LastAttemptAt) {
		t.Fatalf("timestamp mismatch: got created=%v last=%v", got.CreatedAt, got.LastAttemptAt)
	}
}

func TestStore_SavePendingReplacesRow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	item := testItem("item-1")
	if err := s.SavePending(ctx, item); err != nil {
		t.Fatal(err)
	}
	item.Attempts = 5
	if err := s.SavePending(ctx, item); err != nil {
		t.Fatal(err)
	}

	items, _ := s.LoadPending(ctx)
	if len(items) != 1 {
		t.Fatalf("expected replacement, got %d rows", len(items))
	}
	if items[0].Attempts != 5 {
		t.Fatalf("expected attempts=5, got %d", items[0].Attempts)
	}
}

// TestStore_DeadLetterMoveRemovesPendingRow verifies an item never exists in
// both areas: the dead-letter write deletes the pending row transactionally.
func TestStore_DeadLetterMoveRemovesPendingRow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	item := testItem("item-1")
	if err := s.SavePending(ctx, item); err != nil {
		t.Fatal(err)
	}

	d := domain.DeadLetterItem{
		QueueItem: item,
		MovedAt:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Reason:    "retries exhausted",
	}
	if err := s.SaveDeadLetter(ctx, d); err != nil {
		t.Fatal(err)
	}

	pending, _ := s.LoadPending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected pending row removed, got %d", len(pending))
	}

	dead, err := s.LoadDeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].Reason != "retries exhausted" {
		t.Fatalf("unexpected dead-letter contents: %+v", dead)
	}
	if !dead[0].MovedAt.Equal(d.MovedAt) {
		t.Fatalf("moved_at mismatch: %v", dead[0].MovedAt)
	}
}

func TestStore_CursorRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, ok, err := s.LoadCursor(ctx, "activities"); err != nil || ok {
		t.Fatalf("expected no cursor on first run, ok=%v err=%v", ok, err)
	}

	want := domain.SyncCursor{
		Stream:     "activities",
		Token:      "2025-06-01T12:00:00Z",
		Represents: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SaveCursor(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.LoadCursor(ctx, "activities")
	if err != nil || !ok {
		t.Fatalf("expected cursor, ok=%v err=%v", ok, err)
	}
	if got.Token != want.Token || !got.Represents.Equal(want.Represents) {
		t.Fatalf("cursor mismatch: %+v", got)
	}

	// Replace, then reset.
	want.Represents = want.Represents.Add(time.Hour)
	if err := s.SaveCursor(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.LoadCursor(ctx, "activities")
	if !got.Represents.Equal(want.Represents) {
		t.Fatal("expected cursor to be replaced")
	}

	if err := s.ResetCursor(ctx, "activities"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.LoadCursor(ctx, "activities"); ok {
		t.Fatal("expected cursor gone after reset")
	}
}

func TestStore_ProcessedTrimsBeyondCap(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ids := []string{"e1", "e2", "e3", "e4", "e5"}
	trimmed, err := s.AddProcessed(ctx, ids, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(trimmed) != 2 {
		t.Fatalf("expected 2 trimmed ids, got %v", trimmed)
	}
	if trimmed[0] != "e1" || trimmed[1] != "e2" {
		t.Fatalf("expected oldest ids trimmed, got %v", trimmed)
	}

	remaining, err := s.LoadProcessed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 3 || remaining[0] != "e3" {
		t.Fatalf("unexpected remaining ids: %v", remaining)
	}
}

func TestStore_ProcessedIgnoresDuplicates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.AddProcessed(ctx, []string{"e1", "e2"}, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddProcessed(ctx, []string{"e2", "e3"}, 100); err != nil {
		t.Fatal(err)
	}

	ids, _ := s.LoadProcessed(ctx)
	if len(ids) != 3 {
		t.Fatalf("expected 3 unique ids, got %v", ids)
	}
}
