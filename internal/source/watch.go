package source

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher turns filesystem activity in the spool directory into "new data
// may exist" signals. Events are debounced: a device dropping a burst of
// files yields one trigger, not one per file.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  func()
	logger   *zap.Logger
}

func NewWatcher(dir string, debounce time.Duration, trigger func(), logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{dir: dir, debounce: debounce, trigger: trigger, logger: logger}
}

// Run watches until ctx is cancelled. A watcher setup failure is returned
// to the caller; the daemon still works without it via the drain timer and
// the manual trigger, so main only logs the error.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching spool directory", zap.String("dir", w.dir))

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("spool watcher error", zap.Error(err))
		case <-timerC:
			timerC = nil
			timer = nil
			w.trigger()
		}
	}
}
