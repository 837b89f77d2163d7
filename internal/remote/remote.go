// Package remote abstracts the remote record store. Writes are idempotent
// upserts keyed by identifiers derived from domain identity, so at-least-once
// delivery converges on exactly one record no matter how often an item is
// re-delivered.
package remote

import (
	"context"
	"fmt"
	"time"
)

// Well-known collections on the remote store.
const (
	CollectionActivities    = "activity_records"
	CollectionUserStats     = "user_stats"
	CollectionFeedPosts     = "feed_posts"
	CollectionNotifications = "notifications"
	CollectionLinks         = "links"
)

// Record is one stored row as returned by Query.
type Record struct {
	Collection string         `json:"collection"`
	Key        string         `json:"key"`
	Fields     map[string]any `json:"fields"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Predicate filters Query results. Field/Value match inside the record's
// field document; zero-value fields are ignored.
type Predicate struct {
	Field string
	Value any
}

// RecordStore is the write/read contract against the remote store.
// Mocking this interface in tests gives full control over remote behaviour
// without a live database.
type RecordStore interface {
	Upsert(ctx context.Context, collection, key string, fields map[string]any) error
	Query(ctx context.Context, collection string, pred Predicate, limit int) ([]Record, error)
	Delete(ctx context.Context, collection, key string) error
}

// Deterministic key derivation. Keys are never randomly generated: a
// repeated delivery of the same logical write must hit the same record.

// ActivityKey identifies one activity record for one subject.
func ActivityKey(subjectKey, activityID string) string {
	return fmt.Sprintf("%s_activity_%s", subjectKey, activityID)
}

// StatsKey identifies the single derived-stats record for a subject.
func StatsKey(subjectKey string) string {
	return fmt.Sprintf("%s_stats", subjectKey)
}

// LinkKey identifies a relation between two subjects,
// e.g. "alice_follows_bob".
func LinkKey(subjectKey, relation, targetKey string) string {
	return fmt.Sprintf("%s_%s_%s", subjectKey, relation, targetKey)
}

// FeedPostKey identifies the feed post derived from one activity.
func FeedPostKey(subjectKey, activityID string) string {
	return fmt.Sprintf("%s_feed_%s", subjectKey, activityID)
}

// NotificationKey identifies the notification derived from one activity.
func NotificationKey(subjectKey, activityID string) string {
	return fmt.Sprintf("%s_notify_%s", subjectKey, activityID)
}
