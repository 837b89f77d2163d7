package remote

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pinger is the connectivity probe, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reachability publishes whether the remote store is currently reachable.
// Producers consult it to choose between "write immediately" and "enqueue
// for later" without issuing a network probe per operation; the answer may
// be a few seconds stale, which idempotent writes make harmless.
type Reachability struct {
	pinger    Pinger
	interval  time.Duration
	reachable atomic.Bool
	logger    *zap.Logger
}

func NewReachability(pinger Pinger, interval time.Duration, logger *zap.Logger) *Reachability {
	r := &Reachability{pinger: pinger, interval: interval, logger: logger}
	// Optimistic start: the first failed write lands in the retry queue anyway.
	r.reachable.Store(true)
	return r
}

// Reachable reports the last observed connectivity state.
func (r *Reachability) Reachable() bool {
	return r.reachable.Load()
}

// Run probes the remote on a ticker until ctx is cancelled, logging only
// on state transitions.
func (r *Reachability) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, r.interval)
			err := r.pinger.Ping(probeCtx)
			cancel()

			was := r.reachable.Swap(err == nil)
			switch {
			case err != nil && was:
				r.logger.Warn("remote store became unreachable", zap.Error(err))
			case err == nil && !was:
				r.logger.Info("remote store reachable again")
			}
		}
	}
}
