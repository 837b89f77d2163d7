package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// Trigger requests one fetch pass; satisfied by a closure over
// fetcher.RunOnce in main.
type Trigger func() error

// SyncHandler exposes the manual sync trigger.
type SyncHandler struct {
	trigger Trigger
	logger  *zap.Logger
}

func NewSyncHandler(trigger Trigger, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{trigger: trigger, logger: logger}
}

// Run handles POST /api/v1/sync
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.trigger(); err != nil {
		h.logger.Warn("manual sync trigger failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}
