package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/api/handler"
	apimw "github.com/fitpulse/sync-engine/internal/api/middleware"
	"github.com/fitpulse/sync-engine/internal/queue"
	"github.com/fitpulse/sync-engine/internal/remote"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
//
// The surface is diagnostics-only: queue introspection, a manual sync
// trigger, stats lookups, health, and the Prometheus scrape endpoint. The
// sync core never depends on any of it.
func NewRouter(
	q *queue.RetryQueue,
	records remote.RecordStore,
	trigger handler.Trigger,
	reachable func() bool,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	qh := handler.NewQueueHandler(q)
	sh := handler.NewSyncHandler(trigger, logger)
	sth := handler.NewStatsHandler(records)
	hh := handler.NewHealthHandler(reachable)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue", qh.Counts)
		r.Get("/queue/pending", qh.Pending)
		r.Get("/queue/dead-letter", qh.DeadLettered)

		r.Post("/sync", sh.Run)

		r.Get("/stats/{subject}", sth.Get)
	})

	return r
}
