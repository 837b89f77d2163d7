// Package reconciler coalesces rapid derived-stats mutations into periodic
// idempotent writes against the remote store. Delivery is best-effort:
// a snapshot that keeps failing is eventually dropped, because a newer
// snapshot for the same subject always supersedes it and no source-of-truth
// data is at stake.
package reconciler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/remote"
)

// Config bounds the reconciler. Zero values select the defaults.
type Config struct {
	FlushInterval time.Duration // default 5s
	BaseDelay     time.Duration // retry delay unit, default 2s
	MaxAttempts   int           // attempts before a snapshot is dropped, default 3
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Hooks carries the metric callbacks injected by main.
type Hooks struct {
	OnReconciled func()
	OnDropped    func()
}

func (h *Hooks) applyDefaults() {
	if h.OnReconciled == nil {
		h.OnReconciled = func() {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func() {}
	}
}

type retryEntry struct {
	snap     domain.UserStatsSnapshot
	attempts int
	nextAt   time.Time
}

// StatsReconciler accumulates the latest snapshot per subject key and
// flushes the window on a fixed timer.
type StatsReconciler struct {
	mu      sync.Mutex
	pending map[string]domain.UserStatsSnapshot
	retries []retryEntry

	records remote.RecordStore
	limiter *ratelimiter.CollectionLimiters
	cfg     Config
	hooks   Hooks
	logger  *zap.Logger
	now     func() time.Time

	flushing sync.Mutex // serialises flush passes; a tick during a flush waits
}

func New(records remote.RecordStore, limiter *ratelimiter.CollectionLimiters, cfg Config, hooks Hooks, logger *zap.Logger) *StatsReconciler {
	cfg.applyDefaults()
	hooks.applyDefaults()
	return &StatsReconciler{
		pending: make(map[string]domain.UserStatsSnapshot),
		records: records,
		limiter: limiter,
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNowFunc overrides the clock for tests.
func (r *StatsReconciler) WithNowFunc(now func() time.Time) *StatsReconciler {
	r.now = now
	return r
}

// SubmitImmediate writes the snapshot synchronously, bypassing the batch
// window. This is the only reconciler path that propagates failure to the
// caller; on failure the snapshot also enters the retry list so the write
// still happens eventually.
func (r *StatsReconciler) SubmitImmediate(ctx context.Context, snap domain.UserStatsSnapshot) error {
	if err := r.upsert(ctx, snap); err != nil {
		r.addRetry(snap, 1)
		return err
	}
	r.hooks.OnReconciled()
	return nil
}

// SubmitBatched queues the snapshot for the next flush, overwriting any
// unflushed snapshot for the same subject key. Rapid mutations of one
// subject therefore cost one remote write per window, not one per mutation.
func (r *StatsReconciler) SubmitBatched(snap domain.UserStatsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[snap.SubjectKey] = snap
}

// Run flushes on a fixed timer until ctx is cancelled, then performs one
// final flush so a clean shutdown does not strand a window of snapshots.
func (r *StatsReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	r.logger.Info("stats reconciler started",
		zap.Duration("flush_interval", r.cfg.FlushInterval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stats reconciler stopping")
			r.Flush(context.Background())
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush takes the full pending window plus any due retries and dispatches
// one reconciliation attempt per subject key in parallel. A pending
// snapshot supersedes a retrying one for the same key: the retry entry is
// discarded, its work replaced by the newer values.
func (r *StatsReconciler) Flush(ctx context.Context) {
	r.flushing.Lock()
	defer r.flushing.Unlock()

	now := r.now()

	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]domain.UserStatsSnapshot)

	var due []retryEntry
	var waiting []retryEntry
	for _, e := range r.retries {
		if _, superseded := batch[e.snap.SubjectKey]; superseded {
			continue
		}
		if !e.nextAt.After(now) {
			due = append(due, e)
		} else {
			waiting = append(waiting, e)
		}
	}
	r.retries = waiting
	r.mu.Unlock()

	if len(batch) == 0 && len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, snap := range batch {
		wg.Add(1)
		go func(s domain.UserStatsSnapshot) {
			defer wg.Done()
			r.attempt(ctx, s, 0)
		}(snap)
	}
	for _, e := range due {
		wg.Add(1)
		go func(e retryEntry) {
			defer wg.Done()
			r.attempt(ctx, e.snap, e.attempts)
		}(e)
	}
	wg.Wait()
}

// PendingKeys returns the number of coalesced snapshots awaiting flush plus
// snapshots on the retry list, for diagnostics.
func (r *StatsReconciler) PendingKeys() (pending, retrying int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending), len(r.retries)
}

func (r *StatsReconciler) attempt(ctx context.Context, snap domain.UserStatsSnapshot, attempts int) {
	err := r.upsert(ctx, snap)
	if err == nil {
		r.hooks.OnReconciled()
		return
	}

	attempts++
	if attempts >= r.cfg.MaxAttempts {
		r.logger.Error("stats reconciliation permanently failed, dropping snapshot",
			zap.String("subject_key", snap.SubjectKey),
			zap.Int("attempts", attempts),
			zap.Error(err))
		r.hooks.OnDropped()
		return
	}

	r.logger.Warn("stats reconciliation failed, will retry",
		zap.String("subject_key", snap.SubjectKey),
		zap.Int("attempts", attempts),
		zap.Error(err))
	r.addRetry(snap, attempts)
}

func (r *StatsReconciler) addRetry(snap domain.UserStatsSnapshot, attempts int) {
	// Linear backoff: attempts × baseDelay, per the retry ladder used for
	// derived-state writes.
	entry := retryEntry{
		snap:     snap,
		attempts: attempts,
		nextAt:   r.now().Add(time.Duration(attempts) * r.cfg.BaseDelay),
	}
	r.mu.Lock()
	r.retries = append(r.retries, entry)
	r.mu.Unlock()
}

func (r *StatsReconciler) upsert(ctx context.Context, snap domain.UserStatsSnapshot) error {
	if err := r.limiter.Wait(ctx, remote.CollectionUserStats); err != nil {
		return err
	}
	key := remote.StatsKey(snap.SubjectKey)
	return r.records.Upsert(ctx, remote.CollectionUserStats, key, snap.Fields())
}
