// Package stats maintains the local running aggregate per subject and feeds
// the reconciler. It is the producer side of the derived-state path: every
// processed event mutates the aggregate, and the reconciler's coalescing
// turns that stream of mutations into periodic remote writes.
package stats

import (
	"sync"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// Submitter is the reconciler-facing side of the tracker.
// Satisfied by *reconciler.StatsReconciler.
type Submitter interface {
	SubmitBatched(snap domain.UserStatsSnapshot)
}

// Tracker folds processed events into per-subject snapshots.
type Tracker struct {
	mu        sync.Mutex
	snapshots map[string]domain.UserStatsSnapshot
	submitter Submitter
}

func NewTracker(submitter Submitter) *Tracker {
	return &Tracker{
		snapshots: make(map[string]domain.UserStatsSnapshot),
		submitter: submitter,
	}
}

// Record applies one processed event to the subject's aggregate and submits
// the updated snapshot for batched reconciliation.
func (t *Tracker) Record(ev domain.ActivityEvent, derived domain.DerivedValues) {
	t.mu.Lock()
	snap := t.snapshots[ev.SubjectKey]
	snap.SubjectKey = ev.SubjectKey
	snap.TotalActivities++
	snap.TotalDuration += ev.Duration
	snap.TotalPoints += derived.Points
	snap.CurrentStreak = nextStreak(snap.LastActivityAt, ev.EndTime, snap.CurrentStreak)
	if ev.EndTime.After(snap.LastActivityAt) {
		snap.LastActivityAt = ev.EndTime
	}
	t.snapshots[ev.SubjectKey] = snap
	t.mu.Unlock()

	t.submitter.SubmitBatched(snap)
}

// Snapshot returns the current aggregate for a subject, for diagnostics.
func (t *Tracker) Snapshot(subjectKey string) (domain.UserStatsSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[subjectKey]
	return snap, ok
}

// nextStreak extends the streak when the new activity lands on the same or
// the following calendar day (UTC), otherwise resets it to one.
func nextStreak(last, current time.Time, streak int) int {
	if last.IsZero() {
		return 1
	}
	lastDay := last.UTC().Truncate(24 * time.Hour)
	curDay := current.UTC().Truncate(24 * time.Hour)
	switch {
	case curDay.Equal(lastDay):
		return streak
	case curDay.Equal(lastDay.Add(24 * time.Hour)):
		return streak + 1
	case curDay.Before(lastDay):
		// Out-of-order backfill; leave the streak alone.
		return streak
	default:
		return 1
	}
}
