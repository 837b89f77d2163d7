package domain

import "time"

// UserStatsSnapshot carries the latest known derived values for one subject.
// Snapshots are ephemeral: the reconciler keeps only the newest snapshot per
// SubjectKey, so a rapidly mutating subject produces one remote write per
// flush window, not one per mutation.
//
// Extra holds forward-compatible fields that newer producers may set without
// a schema change; it is merged into the remote record as-is.
type UserStatsSnapshot struct {
	SubjectKey      string         `json:"subject_key"`
	TotalActivities int            `json:"total_activities"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalPoints     int            `json:"total_points"`
	CurrentStreak   int            `json:"current_streak"`
	LastActivityAt  time.Time      `json:"last_activity_at"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Fields flattens the snapshot into the field map handed to RecordStore.Upsert.
func (s UserStatsSnapshot) Fields() map[string]any {
	fields := map[string]any{
		"subject_key":      s.SubjectKey,
		"total_activities": s.TotalActivities,
		"total_duration_s": s.TotalDuration.Seconds(),
		"total_points":     s.TotalPoints,
		"current_streak":   s.CurrentStreak,
		"last_activity_at": s.LastActivityAt,
	}
	for k, v := range s.Extra {
		fields[k] = v
	}
	return fields
}
