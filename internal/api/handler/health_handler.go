package handler

import "net/http"

// HealthHandler serves the liveness probe endpoint, plus the reachability
// state of the remote store as a passive indicator.
type HealthHandler struct {
	reachable func() bool
}

func NewHealthHandler(reachable func() bool) *HealthHandler {
	if reachable == nil {
		reachable = func() bool { return true }
	}
	return &HealthHandler{reachable: reachable}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"remote_reachable": h.reachable(),
	})
}
