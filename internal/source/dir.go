// Package source provides the local event source: a spool directory into
// which device bridges drop one JSON file per completed activity. The
// fetcher reads it through the EventSource interface, so swapping in a
// different source (a device database, a health framework bridge) is a
// wiring change only.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// DirSource reads activity events from *.json files in a spool directory.
// Files are never modified or deleted here; the processed-ID guard upstream
// makes re-reads harmless.
type DirSource struct {
	dir    string
	logger *zap.Logger
}

func NewDirSource(dir string, logger *zap.Logger) *DirSource {
	return &DirSource{dir: dir, logger: logger}
}

// FetchSince returns up to limit events whose end time is strictly after
// since, ascending by end time. Unreadable or malformed files are skipped
// with a warning; a malformed spool file must not stall the whole stream.
func (s *DirSource) FetchSince(ctx context.Context, since time.Time, limit int) ([]domain.ActivityEvent, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool directory: %w", err)
	}

	var events []domain.ActivityEvent
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable spool file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		var ev domain.ActivityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("skipping malformed spool file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		if !ev.EndTime.After(since) {
			continue
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].EndTime.Before(events[j].EndTime)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
