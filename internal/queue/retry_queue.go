// Package queue implements the persistent, priority-ordered retry queue.
//
// All mutation goes through a single mutex so there are no lost updates and
// no duplicate dequeues. Every mutating operation persists the affected item
// row before returning; a failed persist is logged at error level and leaves
// the in-memory state ahead of durable state until the next successful write.
// That risk window is accepted, not hidden.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// ItemStore is the durable backing for queue items: one record per item,
// partitioned into a pending area and a dead-letter area.
type ItemStore interface {
	SavePending(ctx context.Context, item domain.QueueItem) error
	SaveDeadLetter(ctx context.Context, d domain.DeadLetterItem) error
	DeletePending(ctx context.Context, id string) error
	DeleteDeadLetter(ctx context.Context, id string) error
	LoadPending(ctx context.Context) ([]domain.QueueItem, error)
	LoadDeadLetters(ctx context.Context) ([]domain.DeadLetterItem, error)
}

// Config bounds the queue. Zero values are replaced with the defaults.
type Config struct {
	MaxSize       int           // pending capacity before demotion to dead-letter
	MaxRetries    int           // attempts before an item is dead-lettered
	Cooldown      time.Duration // minimum spacing between attempts on one item
	DeadLetterCap int           // dead-letter list capacity, oldest evicted
	Retention     time.Duration // age limit for pending and dead-letter items
}

func (c *Config) applyDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.DeadLetterCap <= 0 {
		c.DeadLetterCap = 50
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
}

// RetryQueue holds pending work sorted by (priority desc, createdAt asc)
// and a capacity-bounded dead-letter list.
type RetryQueue struct {
	mu      sync.Mutex
	pending []domain.QueueItem
	dead    []domain.DeadLetterItem

	store  ItemStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// Option customises a RetryQueue at construction time.
type Option func(*RetryQueue)

// WithNowFunc overrides the clock. Tests use this to step through cooldown
// and retention windows without sleeping.
func WithNowFunc(now func() time.Time) Option {
	return func(q *RetryQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// New reconstructs the queue from durable storage, re-sorts pending by the
// queue comparator, and immediately drops expired items.
func New(ctx context.Context, store ItemStore, cfg Config, logger *zap.Logger, opts ...Option) (*RetryQueue, error) {
	cfg.applyDefaults()

	q := &RetryQueue{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	pending, err := store.LoadPending(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := store.LoadDeadLetters(ctx)
	if err != nil {
		return nil, err
	}

	q.pending = pending
	q.dead = dead
	q.sortPending()
	q.CleanupExpired(ctx)

	logger.Info("retry queue loaded",
		zap.Int("pending", len(q.pending)),
		zap.Int("dead_letter", len(q.dead)))
	return q, nil
}

// Enqueue adds an item, or bumps the existing entry when the ID is already
// pending (idempotent re-submission: attempts incremented, lastAttemptAt
// refreshed, no duplicate appended). Enqueue never fails for the caller;
// capacity pressure demotes the lowest-priority/oldest items to dead-letter
// instead of rejecting new work.
func (q *RetryQueue) Enqueue(ctx context.Context, item domain.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pending {
		if q.pending[i].ID == item.ID {
			q.pending[i].Attempts++
			q.pending[i].LastAttemptAt = q.now()
			q.persistPending(ctx, q.pending[i])
			return
		}
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = q.now()
	}
	q.pending = append(q.pending, item)
	q.sortPending()
	q.persistPending(ctx, item)

	q.evictExcessLocked(ctx)
}

// Dequeue returns the highest-priority, oldest item whose cooldown has
// elapsed, removing it from the pending list. ok is false when nothing is
// eligible; callers poll on a timer rather than blocking.
func (q *RetryQueue) Dequeue(ctx context.Context) (domain.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for i := range q.pending {
		if now.Sub(q.pending[i].LastAttemptAt) < q.cfg.Cooldown {
			continue
		}
		item := q.pending[i]
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		if err := q.store.DeletePending(ctx, item.ID); err != nil {
			q.logger.Error("failed to delete dequeued item from store",
				zap.String("id", item.ID), zap.Error(err))
		}
		return item, true
	}
	return domain.QueueItem{}, false
}

// Remove deletes a pending item by ID, e.g. after an out-of-band success.
func (q *RetryQueue) Remove(ctx context.Context, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			if err := q.store.DeletePending(ctx, id); err != nil {
				q.logger.Error("failed to delete removed item from store",
					zap.String("id", id), zap.Error(err))
			}
			return
		}
	}
}

// HandleFailure records a failed attempt. Items that reach the retry limit
// move to dead-letter; everything else re-enters the pending list with its
// updated attempt count and competes again under the priority/age ordering.
func (q *RetryQueue) HandleFailure(ctx context.Context, item domain.QueueItem) {
	item.Attempts++
	item.LastAttemptAt = q.now()

	if item.Attempts >= q.cfg.MaxRetries {
		q.logger.Error("item exhausted retries, moving to dead-letter",
			zap.String("id", item.ID),
			zap.String("kind", string(item.Kind)),
			zap.Int("attempts", item.Attempts))
		q.MoveToDeadLetter(ctx, item, "retries exhausted")
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// The item was removed by Dequeue, so this is a plain re-insert.
	q.pending = append(q.pending, item)
	q.sortPending()
	q.persistPending(ctx, item)
	q.evictExcessLocked(ctx)
}

// MoveToDeadLetter places an item on the dead-letter list, evicting the
// oldest entry when the list is at capacity.
func (q *RetryQueue) MoveToDeadLetter(ctx context.Context, item domain.QueueItem, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.moveToDeadLetterLocked(ctx, item, reason)
}

func (q *RetryQueue) moveToDeadLetterLocked(ctx context.Context, item domain.QueueItem, reason string) {
	d := domain.DeadLetterItem{
		QueueItem: item,
		MovedAt:   q.now(),
		Reason:    reason,
	}

	if len(q.dead) >= q.cfg.DeadLetterCap {
		evicted := q.dead[0]
		q.dead = q.dead[1:]
		if err := q.store.DeleteDeadLetter(ctx, evicted.ID); err != nil {
			q.logger.Error("failed to delete evicted dead-letter item",
				zap.String("id", evicted.ID), zap.Error(err))
		}
	}

	q.dead = append(q.dead, d)
	if err := q.store.SaveDeadLetter(ctx, d); err != nil {
		q.logger.Error("failed to persist dead-letter item",
			zap.String("id", d.ID), zap.Error(err))
	}
}

// CleanupExpired drops pending and dead-letter items older than the
// retention window. Run at load time and on every drain tick.
func (q *RetryQueue) CleanupExpired(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.cfg.Retention)

	kept := q.pending[:0]
	for _, item := range q.pending {
		if item.CreatedAt.Before(cutoff) {
			q.logger.Warn("dropping expired pending item",
				zap.String("id", item.ID), zap.Time("created_at", item.CreatedAt))
			if err := q.store.DeletePending(ctx, item.ID); err != nil {
				q.logger.Error("failed to delete expired pending item",
					zap.String("id", item.ID), zap.Error(err))
			}
			continue
		}
		kept = append(kept, item)
	}
	q.pending = kept

	keptDead := q.dead[:0]
	for _, d := range q.dead {
		if d.CreatedAt.Before(cutoff) {
			if err := q.store.DeleteDeadLetter(ctx, d.ID); err != nil {
				q.logger.Error("failed to delete expired dead-letter item",
					zap.String("id", d.ID), zap.Error(err))
			}
			continue
		}
		keptDead = append(keptDead, d)
	}
	q.dead = keptDead
}

// Pending returns a snapshot copy of the pending list in dequeue order.
func (q *RetryQueue) Pending() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueItem, len(q.pending))
	copy(out, q.pending)
	return out
}

// DeadLettered returns a snapshot copy of the dead-letter list, oldest first.
func (q *RetryQueue) DeadLettered() []domain.DeadLetterItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.DeadLetterItem, len(q.dead))
	copy(out, q.dead)
	return out
}

// Counts returns the current pending and dead-letter depths.
func (q *RetryQueue) Counts() (pending, deadLettered int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.dead)
}

// sortPending keeps the dequeue order deterministic:
// priority descending, then createdAt ascending.
func (q *RetryQueue) sortPending() {
	sort.SliceStable(q.pending, func(i, j int) bool {
		ri, rj := q.pending[i].Priority.Rank(), q.pending[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return q.pending[i].CreatedAt.Before(q.pending[j].CreatedAt)
	})
}

// evictExcessLocked demotes the lowest-priority, oldest items to dead-letter
// until the pending list is back within capacity. Capacity protection takes
// precedence over retry fairness: the demoted items' producers are not told.
func (q *RetryQueue) evictExcessLocked(ctx context.Context) {
	for len(q.pending) > q.cfg.MaxSize {
		victim := 0
		for i := 1; i < len(q.pending); i++ {
			vr := q.pending[victim].Priority.Rank()
			ir := q.pending[i].Priority.Rank()
			if ir < vr || (ir == vr && q.pending[i].CreatedAt.Before(q.pending[victim].CreatedAt)) {
				victim = i
			}
		}
		item := q.pending[victim]
		q.pending = append(q.pending[:victim], q.pending[victim+1:]...)
		q.logger.Warn("pending queue over capacity, demoting item to dead-letter",
			zap.String("id", item.ID), zap.String("priority", string(item.Priority)))
		q.moveToDeadLetterLocked(ctx, item, "capacity eviction")
	}
}

func (q *RetryQueue) persistPending(ctx context.Context, item domain.QueueItem) {
	if err := q.store.SavePending(ctx, item); err != nil {
		q.logger.Error("failed to persist pending item",
			zap.String("id", item.ID), zap.Error(err))
	}
}
