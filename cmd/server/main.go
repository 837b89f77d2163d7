package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/api"
	"github.com/fitpulse/sync-engine/internal/config"
	"github.com/fitpulse/sync-engine/internal/domain"
	"github.com/fitpulse/sync-engine/internal/fetcher"
	"github.com/fitpulse/sync-engine/internal/metrics"
	"github.com/fitpulse/sync-engine/internal/notify"
	"github.com/fitpulse/sync-engine/internal/policy"
	"github.com/fitpulse/sync-engine/internal/queue"
	"github.com/fitpulse/sync-engine/internal/ratelimiter"
	"github.com/fitpulse/sync-engine/internal/reconciler"
	"github.com/fitpulse/sync-engine/internal/remote"
	"github.com/fitpulse/sync-engine/internal/source"
	"github.com/fitpulse/sync-engine/internal/stats"
	"github.com/fitpulse/sync-engine/internal/store"
	"github.com/fitpulse/sync-engine/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	// ---- local durable state ----
	st, err := store.Open(ctx, cfg.StatePath)
	if err != nil {
		logger.Fatal("failed to open local state store", zap.Error(err))
	}
	defer st.Close()

	// ---- remote record store ----
	pool, err := remote.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal("failed to connect to remote store", zap.Error(err))
	}
	defer pool.Close()

	if err := remote.Migrate(cfg.DatabaseURL, "file://migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("remote store migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	records := m.WrapRecords(remote.NewPgRecordStore(pool))
	limiter := ratelimiter.New(cfg.RateLimit)
	reach := remote.NewReachability(pool, cfg.ReachabilityInterval, logger)

	rq, err := queue.New(ctx, st, queue.Config{
		MaxSize:       cfg.QueueMaxSize,
		MaxRetries:    cfg.QueueMaxRetries,
		Cooldown:      cfg.QueueCooldown,
		DeadLetterCap: cfg.QueueDeadLetterCap,
		Retention:     cfg.QueueRetention,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load retry queue", zap.Error(err))
	}

	guard, err := fetcher.NewProcessedGuard(ctx, st, cfg.ProcessedIDCap, logger)
	if err != nil {
		logger.Fatal("failed to load processed-id guard", zap.Error(err))
	}

	// ---- derived-state pipeline ----
	rec := reconciler.New(records, limiter, reconciler.Config{
		FlushInterval: cfg.FlushInterval,
		BaseDelay:     cfg.ReconcileBaseDelay,
		MaxAttempts:   cfg.ReconcileMaxAttempts,
	}, reconciler.Hooks{
		OnReconciled: m.StatsReconciled.Inc,
		OnDropped:    m.StatsDropped.Inc,
	}, logger)

	tracker := stats.NewTracker(rec)

	bus := notify.NewBus()
	bus.Subscribe(func(e notify.ProcessedEvent) {
		tracker.Record(e.Event, e.Derived)
	})
	// Social/notification fan-out: deferred work on the retry queue so a
	// flaky remote never blocks event processing.
	bus.Subscribe(func(e notify.ProcessedEvent) {
		if !e.Derived.Rewardable {
			return
		}
		enqueueJSON(ctx, rq, logger, domain.QueueItem{
			ID:       remote.FeedPostKey(e.Event.SubjectKey, e.Event.ID),
			Kind:     domain.KindFeedPost,
			Priority: domain.PriorityMedium,
		}, domain.FeedPostPayload{
			SubjectKey:   e.Event.SubjectKey,
			ActivityID:   e.Event.ID,
			ActivityType: e.Event.ActivityType,
			Message:      fmt.Sprintf("completed a %s", e.Event.ActivityType),
			Points:       e.Derived.Points,
		})
		enqueueJSON(ctx, rq, logger, domain.QueueItem{
			ID:       remote.NotificationKey(e.Event.SubjectKey, e.Event.ID),
			Kind:     domain.KindNotificationDispatch,
			Priority: domain.PriorityLow,
		}, domain.NotificationPayload{
			SubjectKey: e.Event.SubjectKey,
			ActivityID: e.Event.ID,
			Title:      "Activity synced",
			Body:       fmt.Sprintf("%s earned %d points", e.Event.ActivityType, e.Derived.Points),
		})
	})

	// ---- incremental fetcher ----
	src := source.NewDirSource(cfg.SpoolDir, logger)
	f := fetcher.New(src, st, guard, records, rq, limiter, fetcher.Config{
		Stream:         "activities",
		BatchSize:      cfg.FetchBatchSize,
		AccountCreated: cfg.AccountCreated,
		Window:         policy.Window{Max: cfg.SyncMaxWindow, MinRecent: cfg.SyncMinRecent},
	}, fetcher.Hooks{
		OnProcessed: m.EventsProcessed.Inc,
		OnDiscarded: m.EventsDiscarded.Inc,
		OnDeferred:  m.EventsDeferred.Inc,
	}, func(ev domain.ActivityEvent, derived domain.DerivedValues) {
		bus.Publish(notify.ProcessedEvent{Event: ev, Derived: derived})
	}, logger)

	// ---- kind handlers + drainer ----
	registry := worker.NewRegistry()
	worker.RegisterDefaults(registry, records, limiter)

	onProcessed, onFailed, onDepths := m.DrainerHooks()
	drainer := worker.NewDrainer(rq, registry, reach, cfg.DrainInterval, worker.MetricHooks{
		OnProcessed: onProcessed,
		OnFailed:    onFailed,
		OnDepths:    onDepths,
	}, logger)

	// ---- background goroutines ----
	// Context for all background work; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workerCtx)
		}()
	}

	run(reach.Run)
	run(drainer.Run)
	run(rec.Run)
	run(func(c context.Context) {
		w := source.NewWatcher(cfg.SpoolDir, cfg.WatchDebounce, func() {
			if err := f.RunOnce(workerCtx); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
				logger.Warn("triggered sync pass failed", zap.Error(err))
			}
		}, logger)
		if err := w.Run(c); err != nil {
			logger.Warn("spool watcher unavailable, relying on manual trigger", zap.Error(err))
		}
	})

	if cfg.FetchOnStartup {
		run(func(c context.Context) {
			if err := f.RunOnce(c); err != nil {
				logger.Warn("startup sync pass failed", zap.Error(err))
			}
		})
	}

	// ---- HTTP server ----
	trigger := func() error { return f.RunOnce(workerCtx) }
	router := api.NewRouter(rq, records, trigger, reach.Reachable, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all background goroutines to stop.
	cancelWorkers()

	// 3. Wait for in-flight work to finish (the reconciler performs a final
	//    flush on its way out).
	wg.Wait()

	logger.Info("server stopped cleanly")
}

// enqueueJSON marshals the payload and enqueues the item. Enqueue is
// fire-and-forget, so marshal failures only log.
func enqueueJSON(ctx context.Context, rq *queue.RetryQueue, logger *zap.Logger, item domain.QueueItem, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal queue payload",
			zap.String("id", item.ID), zap.Error(err))
		return
	}
	item.Payload = data
	rq.Enqueue(ctx, item)
}
