package domain

import "time"

// Kind identifies the payload shape of a queue item. The worker dispatches
// on Kind through an open registration table, so adding a new kind never
// touches existing handlers.
type Kind string

const (
	KindRecordSave           Kind = "record-save"
	KindDerivedStatUpdate    Kind = "derived-stat-update"
	KindFeedPost             Kind = "feed-post"
	KindNotificationDispatch Kind = "notification-dispatch"
	KindLinkUpdate           Kind = "link-update"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindRecordSave, KindDerivedStatUpdate, KindFeedPost,
		KindNotificationDispatch, KindLinkUpdate:
		return true
	}
	return false
}

// Priority controls queue ordering. Critical is processed first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank maps a priority to its sort weight. Higher rank dequeues first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// QueueItem is one unit of deferred work awaiting delivery to the remote
// record store.
//
// ID is supplied by the producer and must be stable: re-enqueueing the same
// ID bumps the attempt counter on the existing entry instead of appending a
// duplicate. Payload is opaque JSON interpreted by the handler registered
// for Kind.
type QueueItem struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Payload       []byte    `json:"payload"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Priority      Priority  `json:"priority"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeadLetterItem is a QueueItem that exhausted its retries (or was demoted
// by capacity eviction). Kept for operator inspection, capacity-bounded and
// expired on the same schedule as pending items.
type DeadLetterItem struct {
	QueueItem
	MovedAt time.Time `json:"moved_at"`
	Reason  string    `json:"reason"`
}
