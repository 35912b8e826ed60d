package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UnitCounts holds the bucketed counts for one unit width of a day.
type UnitCounts struct {
	Unit   int
	Counts []int64
}

// DailyRollup is one observation's fully aggregated day, ready to persist.
type DailyRollup struct {
	ObservationID int64
	Total         int64
	Units         []UnitCounts
}

// LastDailyDay returns the most recent fully committed day
// ("YYYY-MM-DD") across all observations, or ok=false when no day has
// ever been rolled up.
func (s *Store) LastDailyDay(ctx context.Context) (day string, ok bool, err error) {
	var max sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MAX(day) FROM daily_record_count`).Scan(&max)
	if err != nil {
		return "", false, fmt.Errorf("last daily day: %w", err)
	}
	return max.String, max.Valid, nil
}

// FirstRecordTime returns the creation time of the earliest raw record,
// or ok=false when the record table is empty.
func (s *Store) FirstRecordTime(ctx context.Context) (t time.Time, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT created FROM record ORDER BY created ASC LIMIT 1
	`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("first record time: %w", err)
	}
	return t.UTC(), true, nil
}

// MinuteCountsForDay streams per-minute record counts for every
// observation with at least one record in [dayStart, dayEnd), grouped by
// (observation, minute of day) and ordered by observation id. fn is
// invoked once per group; returning an error aborts the stream.
func (s *Store) MinuteCountsForDay(ctx context.Context, dayStart, dayEnd time.Time, fn func(observationID int64, minute int, count int64) error) error {
	query := fmt.Sprintf(`
		SELECT observation_id, %s AS minute, COUNT(*)
		FROM record
		WHERE created >= ? AND created < ?
		GROUP BY observation_id, minute
		ORDER BY observation_id ASC, minute ASC
	`, s.d.minuteOfDayExpr())

	rows, err := s.db.QueryContext(ctx, s.q(query), dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("minute counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			obsID  int64
			minute int
			count  int64
		)
		if err := rows.Scan(&obsID, &minute, &count); err != nil {
			return fmt.Errorf("scan minute count: %w", err)
		}
		if err := fn(obsID, minute, count); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("minute counts: %w", err)
	}
	return nil
}

// InsertDailyRollups persists one whole day (every observation's rollup,
// zero-filled ones included) in a single transaction. A day is therefore
// either fully present or entirely absent; a crash mid-day never leaves
// partial rows behind, and the unique (observation_id, day) constraint
// rejects a concurrent duplicate run rather than silently doubling counts.
func (s *Store) InsertDailyRollups(ctx context.Context, day string, rollups []DailyRollup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("daily rollup %s: begin tx: %w", day, err)
	}
	defer tx.Rollback() // No-op if committed

	unitStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_unit (daily_record_count_id, unit, unit_seq, count)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("daily rollup %s: prepare unit insert: %w", day, err)
	}
	defer unitStmt.Close()

	for _, r := range rollups {
		parentID, err := s.d.insertReturningID(ctx, tx, `
			INSERT INTO daily_record_count (observation_id, day, daily_total_count)
			VALUES (?, ?, ?)
		`, r.ObservationID, day, r.Total)
		if err != nil {
			return fmt.Errorf("daily rollup %s: insert count for observation %d: %w", day, r.ObservationID, err)
		}

		for _, u := range r.Units {
			for seq, count := range u.Counts {
				if _, err := unitStmt.ExecContext(ctx, parentID, u.Unit, seq, count); err != nil {
					return fmt.Errorf("daily rollup %s: insert unit %d seq %d: %w", day, u.Unit, seq, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("daily rollup %s: commit: %w", day, err)
	}
	return nil
}

// DailyRollupFor reads back the checkpoint row for (observation, day).
// Returns ErrNotFound when the day has not been processed for that
// observation.
func (s *Store) DailyRollupFor(ctx context.Context, observationID int64, day string) (*DailyRecordCount, error) {
	drc := &DailyRecordCount{}
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, observation_id, day, daily_total_count
		FROM daily_record_count
		WHERE observation_id = ? AND day = ?
	`), observationID, day).Scan(&drc.ID, &drc.ObservationID, &drc.Day, &drc.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("daily rollup for %d/%s: %w", observationID, day, err)
	}
	return drc, nil
}

// DailyUnitCounts returns the ordered bucket counts of one unit width for
// a daily rollup row.
func (s *Store) DailyUnitCounts(ctx context.Context, dailyRecordCountID int64, unit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT count FROM daily_unit
		WHERE daily_record_count_id = ? AND unit = ?
		ORDER BY unit_seq ASC
	`), dailyRecordCountID, unit)
	if err != nil {
		return nil, fmt.Errorf("daily unit counts: %w", err)
	}
	defer rows.Close()

	var counts []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan daily unit count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily unit counts: %w", err)
	}
	return counts, nil
}

// DailyRowCount reports how many observations have a checkpoint row for
// the given day.
func (s *Store) DailyRowCount(ctx context.Context, day string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM daily_record_count WHERE day = ?
	`), day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("daily row count: %w", err)
	}
	return n, nil
}
