package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensorgrid/recbatch/internal/store"
)

const dayFormat = "2006-01-02"

// DailyEngine aggregates raw records into per-observation daily rollups,
// one calendar day at a time, until caught up to the current day.
type DailyEngine struct {
	store  *store.Store
	logger *slog.Logger

	// Now supplies the wall clock. Overridable in tests; a day in
	// progress is never rolled up, so "today" is the stop bound.
	Now func() time.Time
}

// NewDailyEngine creates a daily rollup engine. A nil logger falls back
// to slog.Default().
func NewDailyEngine(st *store.Store, logger *slog.Logger) *DailyEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyEngine{store: st, logger: logger, Now: time.Now}
}

// Run processes every unprocessed day strictly in order and returns how
// many days were committed. With no raw records at all there is nothing
// to do and Run returns (0, nil).
func (e *DailyEngine) Run(ctx context.Context) (days int, err error) {
	day, ok, err := e.startDay(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		e.logger.Info("daily rollup: no records, nothing to do")
		return 0, nil
	}

	today := dayOf(e.Now().UTC())
	for day.Before(today) {
		if err := ctx.Err(); err != nil {
			return days, err
		}
		if err := e.processDay(ctx, day); err != nil {
			return days, fmt.Errorf("process day %s: %w", day.Format(dayFormat), err)
		}
		days++
		day = day.AddDate(0, 0, 1)
	}

	e.logger.Info("daily rollup: caught up", "days_processed", days)
	return days, nil
}

// startDay determines the first unprocessed day: the day after the most
// recent checkpoint, or the day of the earliest raw record when no
// checkpoint exists yet. ok=false means the record table is empty.
func (e *DailyEngine) startDay(ctx context.Context) (time.Time, bool, error) {
	last, ok, err := e.store.LastDailyDay(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		d, err := time.ParseInLocation(dayFormat, last, time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse checkpoint day %q: %w", last, err)
		}
		return d.AddDate(0, 0, 1), true, nil
	}

	first, ok, err := e.store.FirstRecordTime(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return dayOf(first), true, nil
}

// processDay aggregates one day for every observation and commits the
// whole day, zero-filled observations included, in one transaction.
func (e *DailyEngine) processDay(ctx context.Context, day time.Time) error {
	dayStr := day.Format(dayFormat)
	start := time.Now()

	obsIDs, err := e.store.ObservationIDs(ctx)
	if err != nil {
		return err
	}

	var (
		rollups []store.DailyRollup
		seen    = make(map[int64]bool)

		curObs    int64
		curActive bool
		minutes   map[int]int64
	)

	finalize := func() {
		rollups = append(rollups, buildRollup(curObs, minutes))
		seen[curObs] = true
	}

	// The grouped stream arrives in observation order; an observation id
	// change means the previous observation's day is complete.
	err = e.store.MinuteCountsForDay(ctx, day, day.AddDate(0, 0, 1), func(obsID int64, minute int, count int64) error {
		if curActive && obsID != curObs {
			finalize()
			curActive = false
		}
		if !curActive {
			curObs = obsID
			curActive = true
			minutes = make(map[int]int64)
		}
		minutes[minute] += count
		return nil
	})
	if err != nil {
		return err
	}
	if curActive {
		finalize()
	}
	withRecords := len(rollups)

	// Zero-fill: absence of records is a recorded fact. Every known
	// observation gets a row for the day, all buckets zero.
	for _, id := range obsIDs {
		if !seen[id] {
			rollups = append(rollups, buildRollup(id, nil))
		}
	}

	if err := e.store.InsertDailyRollups(ctx, dayStr, rollups); err != nil {
		return err
	}

	e.logger.Info("daily rollup: day committed",
		"day", dayStr,
		"observations", len(rollups),
		"with_records", withRecords,
		"zero_filled", len(rollups)-withRecords,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// buildRollup runs the bucket aggregator for every unit width over one
// observation's minute counts. A nil map yields an all-zero day.
func buildRollup(observationID int64, minutes map[int]int64) store.DailyRollup {
	r := store.DailyRollup{ObservationID: observationID}
	for _, count := range minutes {
		r.Total += count
	}
	for _, unit := range UnitWidths {
		r.Units = append(r.Units, store.UnitCounts{
			Unit:   unit,
			Counts: Buckets(minutes, unit),
		})
	}
	return r
}

// dayOf truncates a time to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
