// Package fetcher implements the anchored incremental fetch loop: resume
// from a durable cursor, pull a bounded batch of new events from the local
// source, hand them to the remote writer, and advance the cursor only after
// the whole batch has been handled.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/policy"
	"github.com/fitpulse/sync-engine/internal/queue"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/remote"
)

// EventSource is the local producer of completed activities, e.g. a device
// database or health framework bridge. Results are ascending by end time,
// strictly after since.
type EventSource interface {
	FetchSince(ctx context.Context, since time.Time, limit int) ([]domain.ActivityEvent, error)
}

// CursorStore persists the per-stream resumption token.
// Satisfied by *store.Store.
type CursorStore interface {
	LoadCursor(ctx context.Context, stream string) (domain.SyncCursor, bool, error)
	SaveCursor(ctx context.Context, c domain.SyncCursor) error
}

// Hooks carries the metric callbacks injected by main. Using a struct keeps
// the fetcher constructor signature manageable and the fetcher metrics-agnostic.
type Hooks struct {
	OnProcessed func()
	OnDiscarded func()
	OnDeferred  func()
}

func (h *Hooks) applyDefaults() {
	if h.OnProcessed == nil {
		h.OnProcessed = func() {}
	}
	if h.OnDiscarded == nil {
		h.OnDiscarded = func() {}
	}
	if h.OnDeferred == nil {
		h.OnDeferred = func() {}
	}
}

// Config holds the fetcher's tunables and collaborators that are plain values.
type Config struct {
	Stream         string    // logical stream name for the cursor
	BatchSize      int       // max events per fetch, default 10
	AccountCreated time.Time // reward eligibility boundary
	Window         policy.Window
}

// Fetcher drives RunOnce. It owns the cursor and the processed-ID guard;
// no other component reads or writes them.
type Fetcher struct {
	source  EventSource
	cursors CursorStore
	guard   *ProcessedGuard
	records remote.RecordStore
	rq      *queue.RetryQueue
	limiter *ratelimiter.CollectionLimiters
	cfg     Config
	hooks   Hooks
	logger  *zap.Logger
	now     func() time.Time

	// onEvent publishes each successfully handled event to local consumers.
	onEvent func(domain.ActivityEvent, domain.DerivedValues)

	running atomic.Bool
}

func New(
	source EventSource,
	cursors CursorStore,
	guard *ProcessedGuard,
	records remote.RecordStore,
	rq *queue.RetryQueue,
	limiter *ratelimiter.CollectionLimiters,
	cfg Config,
	hooks Hooks,
	onEvent func(domain.ActivityEvent, domain.DerivedValues),
	logger *zap.Logger,
) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Stream == "" {
		cfg.Stream = "activities"
	}
	hooks.applyDefaults()
	if onEvent == nil {
		onEvent = func(domain.ActivityEvent, domain.DerivedValues) {}
	}
	return &Fetcher{
		source:  source,
		cursors: cursors,
		guard:   guard,
		records: records,
		rq:      rq,
		limiter: limiter,
		cfg:     cfg,
		hooks:   hooks,
		onEvent: onEvent,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNowFunc overrides the clock for tests. Must be called before RunOnce.
func (f *Fetcher) WithNowFunc(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// RunOnce performs one fetch-and-handle pass. Invoked on the new-data
// signal, at startup, and by the manual trigger endpoint. Only one pass
// runs at a time; a concurrent call returns ErrSyncInProgress.
//
// The cursor moves forward only after the batch is fully handled. A failed
// fetch leaves it untouched; per-event remote write failures are queued as
// high-priority record-save items and do not hold the cursor back, because
// the queued item now owns the event's delivery.
func (f *Fetcher) RunOnce(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}
	defer f.running.Store(false)

	now := f.now()

	since, err := f.resolveStart(ctx, now)
	if err != nil {
		return err
	}

	events, err := f.source.FetchSince(ctx, since, f.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch events since %s: %w", since.Format(time.RFC3339), err)
	}
	if len(events) == 0 {
		return nil
	}

	maxEnd := since
	handledIDs := make([]string, 0, len(events))

	for _, ev := range events {
		if ev.EndTime.After(maxEnd) {
			maxEnd = ev.EndTime
		}

		if f.guard.Contains(ev.ID) {
			continue
		}

		if err := ev.Validate(now); err != nil {
			f.logger.Warn("discarding invalid event",
				zap.String("event_id", ev.ID), zap.Error(err))
			f.hooks.OnDiscarded()
			handledIDs = append(handledIDs, ev.ID)
			continue
		}

		derived := f.derive(ev)
		f.writeOrEnqueue(ctx, ev, derived)
		f.onEvent(ev, derived)
		f.hooks.OnProcessed()
		handledIDs = append(handledIDs, ev.ID)
	}

	cursor := domain.SyncCursor{
		Stream:     f.cfg.Stream,
		Token:      maxEnd.UTC().Format(time.RFC3339Nano),
		Represents: maxEnd,
	}
	if err := f.cursors.SaveCursor(ctx, cursor); err != nil {
		// The batch is handled; a stale cursor only causes a re-fetch that
		// the processed-ID guard and idempotent upserts absorb.
		f.logger.Error("failed to persist cursor", zap.Error(err))
	}
	f.guard.Add(ctx, handledIDs)

	f.logger.Info("sync pass complete",
		zap.Int("fetched", len(events)),
		zap.Int("handled", len(handledIDs)),
		zap.Time("cursor", maxEnd))
	return nil
}

// resolveStart returns the cursor position, or the policy window start on
// first run.
func (f *Fetcher) resolveStart(ctx context.Context, now time.Time) (time.Time, error) {
	cursor, ok, err := f.cursors.LoadCursor(ctx, f.cfg.Stream)
	if err != nil {
		return time.Time{}, fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		return cursor.Represents, nil
	}
	return f.cfg.Window.SyncStart(f.cfg.AccountCreated, now), nil
}

// derive computes the values attached to an event before it leaves the
// process. Pre-account-creation events sync for completeness but never score.
func (f *Fetcher) derive(ev domain.ActivityEvent) domain.DerivedValues {
	rewardable := policy.Rewardable(ev.EndTime, f.cfg.AccountCreated)
	points := 0
	if rewardable {
		points = int(ev.Duration.Minutes()) + int(ev.DistanceM/1000)*5
	}
	return domain.DerivedValues{
		Points:          points,
		DurationMinutes: ev.Duration.Minutes(),
		Rewardable:      rewardable,
	}
}

// writeOrEnqueue attempts the direct remote write; on failure the event is
// queued as a high-priority record-save item rather than dropped.
func (f *Fetcher) writeOrEnqueue(ctx context.Context, ev domain.ActivityEvent, derived domain.DerivedValues) {
	if err := f.limiter.Wait(ctx, remote.CollectionActivities); err != nil {
		return
	}

	key := remote.ActivityKey(ev.SubjectKey, ev.ID)
	err := f.records.Upsert(ctx, remote.CollectionActivities, key, activityFields(ev, derived))
	if err == nil {
		return
	}

	f.logger.Warn("direct activity write failed, deferring to retry queue",
		zap.String("event_id", ev.ID), zap.Error(err))
	f.hooks.OnDeferred()

	payload, mErr := json.Marshal(domain.RecordSavePayload{Event: ev, Derived: derived})
	if mErr != nil {
		f.logger.Error("failed to marshal record-save payload",
			zap.String("event_id", ev.ID), zap.Error(mErr))
		return
	}
	f.rq.Enqueue(ctx, domain.QueueItem{
		ID:       key,
		Kind:     domain.KindRecordSave,
		Payload:  payload,
		Priority: domain.PriorityHigh,
	})
}

// activityFields flattens an event and its derived values into the remote
// field document.
func activityFields(ev domain.ActivityEvent, derived domain.DerivedValues) map[string]any {
	return map[string]any{
		"subject_key":      ev.SubjectKey,
		"activity_id":      ev.ID,
		"activity_type":    ev.ActivityType,
		"start_time":       ev.StartTime.UTC(),
		"end_time":         ev.EndTime.UTC(),
		"duration_s":       ev.Duration.Seconds(),
		"distance_m":       ev.DistanceM,
		"energy_kcal":      ev.EnergyKcal,
		"avg_heart_rate":   ev.AvgHeartRate,
		"points":           derived.Points,
		"duration_minutes": derived.DurationMinutes,
		"rewardable":       derived.Rewardable,
	}
}
