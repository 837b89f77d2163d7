package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/remote"
)

// Handler processes one dequeued item. A nil return removes the item for
// good; an error routes it through HandleFailure (re-enqueue or dead-letter).
type Handler func(ctx context.Context, item domain.QueueItem) error

// Registry maps item kinds to handlers. New kinds register here without
// touching existing handlers.
type Registry struct {
	handlers map[domain.Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.Kind]Handler)}
}

func (r *Registry) Register(kind domain.Kind, h Handler) {
	r.handlers[kind] = h
}

// Dispatch routes the item to its kind's handler. An unknown kind is a
// permanent failure: retrying cannot make a handler appear.
func (r *Registry) Dispatch(ctx context.Context, item domain.QueueItem) error {
	h, ok := r.handlers[item.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, item.Kind)
	}
	return h(ctx, item)
}

// RegisterDefaults wires the built-in handlers for all five kinds. Every
// handler performs an idempotent write keyed by identity derived from the
// payload, so a re-delivered item converges on the same remote record.
func RegisterDefaults(r *Registry, records remote.RecordStore, limiter *ratelimiter.CollectionLimiters) {
	r.Register(domain.KindRecordSave, func(ctx context.Context, item domain.QueueItem) error {
		var p domain.RecordSavePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode record-save payload: %w", err)
		}
		if err := limiter.Wait(ctx, remote.CollectionActivities); err != nil {
			return err
		}
		key := remote.ActivityKey(p.Event.SubjectKey, p.Event.ID)
		return records.Upsert(ctx, remote.CollectionActivities, key, map[string]any{
			"subject_key":      p.Event.SubjectKey,
			"activity_id":      p.Event.ID,
			"activity_type":    p.Event.ActivityType,
			"start_time":       p.Event.StartTime.UTC(),
			"end_time":         p.Event.EndTime.UTC(),
			"duration_s":       p.Event.Duration.Seconds(),
			"distance_m":       p.Event.DistanceM,
			"energy_kcal":      p.Event.EnergyKcal,
			"avg_heart_rate":   p.Event.AvgHeartRate,
			"points":           p.Derived.Points,
			"duration_minutes": p.Derived.DurationMinutes,
			"rewardable":       p.Derived.Rewardable,
		})
	})

	r.Register(domain.KindDerivedStatUpdate, func(ctx context.Context, item domain.QueueItem) error {
		var p domain.StatUpdatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode derived-stat-update payload: %w", err)
		}
		if err := limiter.Wait(ctx, remote.CollectionUserStats); err != nil {
			return err
		}
		key := remote.StatsKey(p.Snapshot.SubjectKey)
		return records.Upsert(ctx, remote.CollectionUserStats, key, p.Snapshot.Fields())
	})

	r.Register(domain.KindFeedPost, func(ctx context.Context, item domain.QueueItem) error {
		var p domain.FeedPostPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode feed-post payload: %w", err)
		}
		if err := limiter.Wait(ctx, remote.CollectionFeedPosts); err != nil {
			return err
		}
		key := remote.FeedPostKey(p.SubjectKey, p.ActivityID)
		return records.Upsert(ctx, remote.CollectionFeedPosts, key, map[string]any{
			"subject_key":   p.SubjectKey,
			"activity_id":   p.ActivityID,
			"activity_type": p.ActivityType,
			"message":       p.Message,
			"points":        p.Points,
			"posted_at":     time.Now().UTC(),
		})
	})

	r.Register(domain.KindNotificationDispatch, func(ctx context.Context, item domain.QueueItem) error {
		var p domain.NotificationPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode notification-dispatch payload: %w", err)
		}
		if err := limiter.Wait(ctx, remote.CollectionNotifications); err != nil {
			return err
		}
		key := remote.NotificationKey(p.SubjectKey, p.ActivityID)
		return records.Upsert(ctx, remote.CollectionNotifications, key, map[string]any{
			"subject_key": p.SubjectKey,
			"activity_id": p.ActivityID,
			"title":       p.Title,
			"body":        p.Body,
			"sent_at":     time.Now().UTC(),
		})
	})

	r.Register(domain.KindLinkUpdate, func(ctx context.Context, item domain.QueueItem) error {
		var p domain.LinkUpdatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode link-update payload: %w", err)
		}
		if err := limiter.Wait(ctx, remote.CollectionLinks); err != nil {
			return err
		}
		key := remote.LinkKey(p.SubjectKey, p.Relation, p.TargetKey)
		if p.Remove {
			err := records.Delete(ctx, remote.CollectionLinks, key)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			return nil
		}
		return records.Upsert(ctx, remote.CollectionLinks, key, map[string]any{
			"subject_key": p.SubjectKey,
			"relation":    p.Relation,
			"target_key":  p.TargetKey,
			"linked_at":   time.Now().UTC(),
		})
	})
}
