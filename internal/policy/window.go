// Package policy holds the pure sync-window rules. No state, no clocks of
// its own: callers pass now explicitly, which keeps every rule trivially
// testable.
package policy

import "time"

const (
	// DefaultMaxWindow bounds historical backfill on first run or after a
	// long gap. Without it a fresh install would re-scan all history.
	DefaultMaxWindow = 30 * 24 * time.Hour

	// DefaultMinRecentWindow is always included, even for a brand-new
	// account: the sync start is clamped to at least this far back.
	DefaultMinRecentWindow = 24 * time.Hour
)

// Window carries the tunable bounds. The zero value selects the defaults.
type Window struct {
	Max       time.Duration
	MinRecent time.Duration
}

func (w Window) max() time.Duration {
	if w.Max > 0 {
		return w.Max
	}
	return DefaultMaxWindow
}

func (w Window) minRecent() time.Duration {
	if w.MinRecent > 0 {
		return w.MinRecent
	}
	return DefaultMinRecentWindow
}

// SyncStart computes where a fetch should begin when no cursor exists:
// the later of account creation and now-maxWindow, clamped to be no later
// than now-minRecentWindow so the most recent day is always covered.
func (w Window) SyncStart(accountCreated, now time.Time) time.Time {
	start := now.Add(-w.max())
	if accountCreated.After(start) {
		start = accountCreated
	}
	if latest := now.Add(-w.minRecent()); start.After(latest) {
		start = latest
	}
	return start
}

// Rewardable reports whether an event ending at end may be scored.
// Pre-account-creation events are synced for completeness but never scored;
// the boundary is strict, an event ending exactly at creation does not count.
func Rewardable(end, accountCreated time.Time) bool {
	return end.After(accountCreated)
}
