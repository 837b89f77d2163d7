package domain

// Queue item payloads, one per Kind. Producers marshal these to JSON; the
// handler registered for the kind unmarshals them back. Keeping the shapes
// here means a producer and its handler can never drift apart silently.

// RecordSavePayload carries an original domain event whose direct remote
// write failed. Losing it would lose source-of-truth data, hence high
// priority on the queue.
type RecordSavePayload struct {
	Event   ActivityEvent `json:"event"`
	Derived DerivedValues `json:"derived"`
}

// StatUpdatePayload carries a derived-stats snapshot routed through the
// queue (the reconciler handles the common path; this kind exists for
// producers that need guaranteed delivery of a stats write).
type StatUpdatePayload struct {
	Snapshot UserStatsSnapshot `json:"snapshot"`
}

// FeedPostPayload describes a feed entry derived from one activity.
type FeedPostPayload struct {
	SubjectKey   string `json:"subject_key"`
	ActivityID   string `json:"activity_id"`
	ActivityType string `json:"activity_type"`
	Message      string `json:"message"`
	Points       int    `json:"points"`
}

// NotificationPayload describes a push-style notification to be delivered
// to the subject's other devices via the remote store.
type NotificationPayload struct {
	SubjectKey string `json:"subject_key"`
	ActivityID string `json:"activity_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// LinkUpdatePayload creates or removes a relation record between two
// subjects. The remote key is derived as subject_relation_target.
type LinkUpdatePayload struct {
	SubjectKey string `json:"subject_key"`
	Relation   string `json:"relation"`
	TargetKey  string `json:"target_key"`
	Remove     bool   `json:"remove,omitempty"`
}
