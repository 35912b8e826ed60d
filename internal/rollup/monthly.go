package rollup

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sensorgrid/recbatch/internal/store"
)

// MonthlyEngine aggregates committed daily rollups into per-observation
// monthly totals, one month at a time, until caught up to the current
// month.
//
// Because a month's aggregate can span the full observation population,
// rows are streamed into a local tab-separated staging file and
// bulk-loaded in one set-oriented operation instead of being inserted
// row by row. Engine memory stays bounded regardless of how many
// observations exist.
type MonthlyEngine struct {
	store  *store.Store
	logger *slog.Logger

	// StagingDir is where staging files are written. Defaults to the
	// system temp directory.
	StagingDir string

	// Now supplies the wall clock; the current month is never rolled up.
	Now func() time.Time
}

// NewMonthlyEngine creates a monthly rollup engine. A nil logger falls
// back to slog.Default().
func NewMonthlyEngine(st *store.Store, logger *slog.Logger) *MonthlyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonthlyEngine{store: st, logger: logger, StagingDir: os.TempDir(), Now: time.Now}
}

// Run processes every unprocessed month strictly in order and returns
// how many months were committed. With no daily rollups at all there is
// nothing to do and Run returns (0, nil).
func (e *MonthlyEngine) Run(ctx context.Context) (months int, err error) {
	year, month, ok, err := e.startMonth(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		e.logger.Info("monthly rollup: no daily rollups, nothing to do")
		return 0, nil
	}

	now := e.Now().UTC()
	curYear, curMonth := now.Year(), int(now.Month())

	for year < curYear || (year == curYear && month < curMonth) {
		if err := ctx.Err(); err != nil {
			return months, err
		}
		if err := e.processMonth(ctx, year, month); err != nil {
			return months, fmt.Errorf("process month %04d-%02d: %w", year, month, err)
		}
		months++
		year, month = nextMonth(year, month)
	}

	e.logger.Info("monthly rollup: caught up", "months_processed", months)
	return months, nil
}

// startMonth determines the first unprocessed month: the month after the
// most recent checkpoint, or the month of the earliest daily rollup when
// no checkpoint exists yet. ok=false means there are no daily rollups.
func (e *MonthlyEngine) startMonth(ctx context.Context) (year, month int, ok bool, err error) {
	year, month, ok, err = e.store.LastMonthlyMonth(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	if ok {
		year, month = nextMonth(year, month)
		return year, month, true, nil
	}

	day, ok, err := e.store.FirstDailyDay(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	if !ok {
		return 0, 0, false, nil
	}
	d, err := time.ParseInLocation(dayFormat, day, time.UTC)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse first daily day %q: %w", day, err)
	}
	return d.Year(), int(d.Month()), true, nil
}

// processMonth streams the month's aggregate into a staging file,
// zero-fills absent observations, bulk-loads the file, and deletes it.
func (e *MonthlyEngine) processMonth(ctx context.Context, year, month int) error {
	start := time.Now()

	obsIDs, err := e.store.ObservationIDs(ctx)
	if err != nil {
		return err
	}

	staging := filepath.Join(e.StagingDir, fmt.Sprintf("monthly_record_count_%04d_%02d.tsv", year, month))
	f, err := os.Create(staging)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	// Removed on every path; a leftover staging file is harmless but
	// the load consumes it exactly once.
	defer os.Remove(staging)

	w := bufio.NewWriter(f)
	seen := make(map[int64]bool)
	var withDays int64

	dayStart := fmt.Sprintf("%04d-%02d-01", year, month)
	nextY, nextM := nextMonth(year, month)
	dayEnd := fmt.Sprintf("%04d-%02d-01", nextY, nextM)

	err = e.store.MonthlyTotals(ctx, dayStart, dayEnd, func(obsID, total int64) error {
		seen[obsID] = true
		withDays++
		_, err := fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", obsID, year, month, total)
		return err
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("write staging file: %w", err)
	}

	// Zero-fill pass: observations with no daily rows in the month
	// still get a monthly row with a zero total.
	for _, id := range obsIDs {
		if !seen[id] {
			if _, err := fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", id, year, month, 0); err != nil {
				f.Close()
				return fmt.Errorf("write staging file: %w", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}

	rows, err := e.store.LoadMonthlyStaging(ctx, staging)
	if err != nil {
		return err
	}

	e.logger.Info("monthly rollup: month committed",
		"month", fmt.Sprintf("%04d-%02d", year, month),
		"observations", rows,
		"with_records", withDays,
		"zero_filled", rows-withDays,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func nextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}
