package source_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/source"
)

func writeEvent(t *testing.T, dir, name string, ev domain.ActivityEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func spoolEvent(id string, end time.Time) domain.ActivityEvent {
	return domain.ActivityEvent{
		ID:         id,
		SubjectKey: "alice",
		StartTime:  end.Add(-30 * time.Minute),
		EndTime:    end,
		Duration:   30 * time.Minute,
	}
}

func TestFetchSince_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	s := source.NewDirSource(dir, zap.NewNop())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	// Written out of order on purpose; the file name must not matter.
	writeEvent(t, dir, "c.json", spoolEvent("e3", base.Add(3*time.Hour)))
	writeEvent(t, dir, "a.json", spoolEvent("e1", base.Add(time.Hour)))
	writeEvent(t, dir, "b.json", spoolEvent("e2", base.Add(2*time.Hour)))
	writeEvent(t, dir, "old.json", spoolEvent("e0", base.Add(-time.Hour)))

	events, err := s.FetchSince(context.Background(), base, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events after the cutoff, got %d", len(events))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if events[i].ID != want {
			t.Fatalf("position %d: got %s, want %s", i, events[i].ID, want)
		}
	}
}

func TestFetchSince_BoundaryIsExclusive(t *testing.T) {
	dir := t.TempDir()
	s := source.NewDirSource(dir, zap.NewNop())

	cutoff := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	writeEvent(t, dir, "exact.json", spoolEvent("exact", cutoff))

	events, err := s.FetchSince(context.Background(), cutoff, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatal("event ending exactly at the cursor must not be re-fetched")
	}
}

func TestFetchSince_AppliesLimit(t *testing.T) {
	dir := t.TempDir()
	s := source.NewDirSource(dir, zap.NewNop())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		name := string(rune('a'+i)) + ".json"
		writeEvent(t, dir, name, spoolEvent(name, base.Add(time.Duration(i+1)*time.Hour)))
	}

	events, err := s.FetchSince(context.Background(), base, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected limit applied, got %d", len(events))
	}
	// The oldest eligible events come first, so the limit never skips ahead.
	if !events[0].EndTime.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected oldest event first, got %v", events[0].EndTime)
	}
}

func TestFetchSince_SkipsMalformedAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := source.NewDirSource(dir, zap.NewNop())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	writeEvent(t, dir, "good.json", spoolEvent("good", base.Add(time.Hour)))
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	events, err := s.FetchSince(context.Background(), base, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "good" {
		t.Fatalf("expected only the valid event, got %+v", events)
	}
}

func TestFetchSince_MissingDirErrors(t *testing.T) {
	s := source.NewDirSource(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	if _, err := s.FetchSince(context.Background(), time.Time{}, 0); err == nil {
		t.Fatal("expected error for missing spool directory")
	}
}
