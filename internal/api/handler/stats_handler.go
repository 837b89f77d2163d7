package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/remote"
)

// StatsHandler reads the derived-stats record for a subject straight from
// the remote store, which makes it useful for verifying that reconciliation
// actually landed.
type StatsHandler struct {
	records remote.RecordStore
}

func NewStatsHandler(records remote.RecordStore) *StatsHandler {
	return &StatsHandler{records: records}
}

// Get handles GET /api/v1/stats/{subject}
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}

	records, err := h.records.Query(r.Context(), remote.CollectionUserStats,
		remote.Predicate{Field: "subject_key", Value: subject}, 1)
	if err != nil {
		mapError(w, err)
		return
	}
	if len(records) == 0 {
		mapError(w, domain.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, records[0])
}
