package handler

import (
	"net/http"

	"github.com/fitpulse/sync-engine/internal/queue"
)

// QueueHandler exposes read-only retry queue introspection for operator
// diagnostics. Nothing here is required for correctness; the snapshots are
// published copies and cannot mutate queue state.
type QueueHandler struct {
	q *queue.RetryQueue
}

func NewQueueHandler(q *queue.RetryQueue) *QueueHandler {
	return &QueueHandler{q: q}
}

// Counts handles GET /api/v1/queue
func (h *QueueHandler) Counts(w http.ResponseWriter, r *http.Request) {
	pending, dead := h.q.Counts()
	respondJSON(w, http.StatusOK, map[string]int{
		"pending":     pending,
		"dead_letter": dead,
	})
}

// Pending handles GET /api/v1/queue/pending
func (h *QueueHandler) Pending(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.q.Pending())
}

// DeadLettered handles GET /api/v1/queue/dead-letter
func (h *QueueHandler) DeadLettered(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.q.DeadLettered())
}
