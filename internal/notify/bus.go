// Package notify fans processed-event notifications out to in-process
// consumers (stats tracking, feed/notification producers, presentation).
// Subscribers run on the publisher's goroutine and must be quick; anything
// slow belongs behind the retry queue or the reconciler.
package notify

import (
	"sync"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// ProcessedEvent is emitted once per successfully handled activity event.
type ProcessedEvent struct {
	Event   domain.ActivityEvent
	Derived domain.DerivedValues
}

// Bus is a minimal subscribe/publish fan-out. Subscriptions happen during
// startup wiring; Publish is called from the fetcher outside any lock.
type Bus struct {
	mu   sync.RWMutex
	subs []func(ProcessedEvent)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every future ProcessedEvent.
func (b *Bus) Subscribe(fn func(ProcessedEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers e to every subscriber in registration order.
func (b *Bus) Publish(e ProcessedEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
