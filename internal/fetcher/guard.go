package fetcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/store"
)

// ProcessedGuard is the bounded set of already-handled event IDs. It exists
// because fetch windows overlap: a cursor anchored at the last batch's max
// end-time will re-deliver events sharing that exact end-time.
//
// The in-memory set answers Contains; the durable table behind it survives
// restarts. Only the fetcher touches it.
type ProcessedGuard struct {
	seen   map[string]struct{}
	cap    int
	store  *store.Store
	logger *zap.Logger
}

// NewProcessedGuard loads the remembered IDs from durable storage.
func NewProcessedGuard(ctx context.Context, s *store.Store, cap int, logger *zap.Logger) (*ProcessedGuard, error) {
	if cap <= 0 {
		cap = 1000
	}
	ids, err := s.LoadProcessed(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return &ProcessedGuard{seen: seen, cap: cap, store: s, logger: logger}, nil
}

func (g *ProcessedGuard) Contains(id string) bool {
	_, ok := g.seen[id]
	return ok
}

// Add records ids durably and in memory, trimming the oldest entries beyond
// the cap. A durability failure is logged and the in-memory set still grows;
// the worst case after a crash is re-processing, which downstream idempotent
// writes absorb.
func (g *ProcessedGuard) Add(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	trimmed, err := g.store.AddProcessed(ctx, ids, g.cap)
	if err != nil {
		g.logger.Error("failed to persist processed event ids", zap.Error(err))
	}
	for _, id := range ids {
		g.seen[id] = struct{}{}
	}
	for _, id := range trimmed {
		delete(g.seen, id)
	}
}

func (g *ProcessedGuard) Len() int {
	return len(g.seen)
}
