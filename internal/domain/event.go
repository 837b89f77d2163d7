package domain

import "time"

// MaxPlausibleDuration bounds how long a single activity may last.
// Anything longer is treated as sensor garbage and discarded.
const MaxPlausibleDuration = 24 * time.Hour

// ActivityEvent is one completed activity read from the local event source.
// ID is assigned by the source and is stable across re-fetches, which lets
// the processed-ID guard skip events seen in an overlapping fetch window.
type ActivityEvent struct {
	ID           string        `json:"id"`
	SubjectKey   string        `json:"subject_key"`
	ActivityType string        `json:"activity_type"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	DistanceM    float64       `json:"distance_m"`
	EnergyKcal   float64       `json:"energy_kcal"`
	AvgHeartRate float64       `json:"avg_heart_rate"`
}

// Validate applies the basic sanity checks from the fetch path. Events that
// fail are discarded with a warning and never retried: a malformed event
// will be malformed forever.
func (e ActivityEvent) Validate(now time.Time) error {
	if e.ID == "" {
		return ErrInvalidEvent
	}
	if e.Duration < 0 || e.Duration > MaxPlausibleDuration {
		return ErrImplausibleDuration
	}
	if e.EndTime.Before(e.StartTime) {
		return ErrInvalidEvent
	}
	if e.EndTime.After(now) {
		return ErrInvalidEvent
	}
	return nil
}

// DerivedValues are computed from a valid event before it is written to the
// remote store and published to local consumers.
type DerivedValues struct {
	Points          int     `json:"points"`
	DurationMinutes float64 `json:"duration_minutes"`
	Rewardable      bool    `json:"rewardable"`
}
