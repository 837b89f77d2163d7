// Package worker drains the retry queue on a timer and dispatches items to
// kind-specific handlers.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/queue"
)

// Reachable reports whether the remote store can currently be written to.
// Satisfied by *remote.Reachability.
type Reachable interface {
	Reachable() bool
}

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the drainer constructor signature clean.
type MetricHooks struct {
	OnProcessed func(kind domain.Kind)
	OnFailed    func(kind domain.Kind)
	OnDepths    func(pending, deadLettered int)
}

func (h *MetricHooks) applyDefaults() {
	if h.OnProcessed == nil {
		h.OnProcessed = func(domain.Kind) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Kind) {}
	}
	if h.OnDepths == nil {
		h.OnDepths = func(int, int) {}
	}
}

// Drainer periodically pulls eligible items off the retry queue. Because
// eligibility already encodes the per-item cooldown, each tick processes
// every item that is currently due and then goes back to sleep.
type Drainer struct {
	rq       *queue.RetryQueue
	registry *Registry
	reach    Reachable
	interval time.Duration
	hooks    MetricHooks
	logger   *zap.Logger
}

func NewDrainer(
	rq *queue.RetryQueue,
	registry *Registry,
	reach Reachable,
	interval time.Duration,
	hooks MetricHooks,
	logger *zap.Logger,
) *Drainer {
	hooks.applyDefaults()
	return &Drainer{
		rq:       rq,
		registry: registry,
		reach:    reach,
		interval: interval,
		hooks:    hooks,
		logger:   logger,
	}
}

// Run ticks every interval and drains due items.
// Stops cleanly when ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("queue drainer started", zap.Duration("interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("queue drainer stopping")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// Drain runs one pass; exported so the manual sync trigger can kick the
// queue without waiting for the next tick.
func (d *Drainer) Drain(ctx context.Context) {
	d.drain(ctx)
}

func (d *Drainer) drain(ctx context.Context) {
	d.rq.CleanupExpired(ctx)
	defer func() {
		pending, dead := d.rq.Counts()
		d.hooks.OnDepths(pending, dead)
	}()

	if !d.reach.Reachable() {
		d.logger.Debug("remote unreachable, skipping drain pass")
		return
	}

	processed := 0
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := d.rq.Dequeue(ctx)
		if !ok {
			break
		}

		if err := d.registry.Dispatch(ctx, item); err != nil {
			d.logger.Warn("item processing failed",
				zap.String("id", item.ID),
				zap.String("kind", string(item.Kind)),
				zap.Int("attempts", item.Attempts),
				zap.Error(err))
			d.rq.HandleFailure(ctx, item)
			d.hooks.OnFailed(item.Kind)
			continue
		}

		d.hooks.OnProcessed(item.Kind)
		processed++
	}

	if processed > 0 {
		d.logger.Info("drained queue items", zap.Int("count", processed))
	}
}
