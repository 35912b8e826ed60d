// Package stats periodically snapshots recorder health counters into the
// recorder_stat table: table totals, recent-1min activity, and the disk
// usage of the database's data directory.
package stats

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sensorgrid/recbatch/internal/store"
)

// DefaultInterval is the snapshot period in interval mode.
const DefaultInterval = time.Minute

// Engine takes recorder stat snapshots.
type Engine struct {
	store  *store.Store
	logger *slog.Logger

	// DataDir is the database cluster's data directory; its recursive
	// size is recorded as disk usage. Empty means disk usage stays 0.
	DataDir string

	// Now supplies the wall clock.
	Now func() time.Time
}

// New creates a stats engine. A nil logger falls back to slog.Default().
func New(st *store.Store, dataDir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger, DataDir: dataDir, Now: time.Now}
}

// Snapshot measures and persists one snapshot.
func (e *Engine) Snapshot(ctx context.Context) (*store.StatSnapshot, error) {
	start := time.Now()
	snap, err := e.store.MeasureStat(ctx, e.Now().UTC())
	if err != nil {
		return nil, err
	}

	if e.DataDir != "" {
		kb, err := diskUsageKB(e.DataDir)
		if err != nil {
			return nil, fmt.Errorf("measure disk usage: %w", err)
		}
		snap.TotalDiskUsageKBytes = kb
	}

	if err := e.store.InsertStat(ctx, snap); err != nil {
		return nil, err
	}

	e.logger.Info("stats: snapshot recorded",
		"records", snap.TotalRecordCount,
		"observations", snap.TotalObservationCount,
		"recent_1min_records", snap.Recent1MinRecordCount,
		"disk_kb", snap.TotalDiskUsageKBytes,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return snap, nil
}

// Run takes a snapshot immediately, then one per interval until the
// context is cancelled. Cancellation is a clean exit.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if _, err := e.Snapshot(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stats: stopping")
			return nil
		case <-ticker.C:
			if _, err := e.Snapshot(ctx); err != nil {
				// One failed measurement does not stop the loop; the
				// next tick tries again.
				e.logger.Error("stats: snapshot failed", "error", err)
			}
		}
	}
}

// diskUsageKB sums the file sizes under dir, in kilobytes.
func diskUsageKB(dir string) (int64, error) {
	var bytes int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return bytes / 1024, nil
}
