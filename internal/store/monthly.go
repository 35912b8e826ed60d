package store

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LastMonthlyMonth returns the most recent fully committed (year, month)
// across all observations, or ok=false when no month has been rolled up.
func (s *Store) LastMonthlyMonth(ctx context.Context) (year, month int, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT year, month FROM monthly_record_count
		ORDER BY year DESC, month DESC LIMIT 1
	`).Scan(&year, &month)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("last monthly month: %w", err)
	}
	return year, month, true, nil
}

// FirstDailyDay returns the earliest daily rollup day ("YYYY-MM-DD"), or
// ok=false when no daily rollups exist yet.
func (s *Store) FirstDailyDay(ctx context.Context) (day string, ok bool, err error) {
	var min sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(day) FROM daily_record_count`).Scan(&min)
	if err != nil {
		return "", false, fmt.Errorf("first daily day: %w", err)
	}
	return min.String, min.Valid, nil
}

// MonthlyTotals streams the summed daily totals of every observation with
// at least one daily rollup row in [dayStart, dayEnd), ordered by
// observation id. Day bounds are "YYYY-MM-DD" strings; the daily engine
// guarantees they order correctly as text.
func (s *Store) MonthlyTotals(ctx context.Context, dayStart, dayEnd string, fn func(observationID, total int64) error) error {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT observation_id, SUM(daily_total_count)
		FROM daily_record_count
		WHERE day >= ? AND day < ?
		GROUP BY observation_id
		ORDER BY observation_id ASC
	`), dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var obsID, total int64
		if err := rows.Scan(&obsID, &total); err != nil {
			return fmt.Errorf("scan monthly total: %w", err)
		}
		if err := fn(obsID, total); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("monthly totals: %w", err)
	}
	return nil
}

// LoadMonthlyStaging bulk-loads a staging file produced by the monthly
// engine into monthly_record_count in one transaction. The file is
// tab-separated: observation_id, year, month, total_count. On PostgreSQL
// the rows go through the COPY protocol; on SQLite through a prepared
// insert. The staging file is not deleted here; the engine removes it
// after a successful load.
func (s *Store) LoadMonthlyStaging(ctx context.Context, path string) (rows int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open staging file: %w", err)
	}
	defer f.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("monthly load: begin tx: %w", err)
	}
	defer tx.Rollback()

	loader, err := s.d.newMonthlyLoader(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("monthly load: %w", err)
	}

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" {
			continue
		}
		obsID, year, month, total, err := parseStagingLine(line)
		if err != nil {
			loader.Close()
			return 0, fmt.Errorf("monthly load: %s:%d: %w", path, lineno, err)
		}
		if err := loader.Add(ctx, obsID, year, month, total); err != nil {
			loader.Close()
			return 0, fmt.Errorf("monthly load: add row %d: %w", lineno, err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		loader.Close()
		return 0, fmt.Errorf("monthly load: read staging file: %w", err)
	}

	if err := loader.Close(); err != nil {
		return 0, fmt.Errorf("monthly load: flush: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("monthly load: commit: %w", err)
	}
	return rows, nil
}

// parseStagingLine parses one staging row: obs_id \t year \t month \t total.
func parseStagingLine(line string) (obsID int64, year, month int, total int64, err error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	if obsID, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("observation id: %w", err)
	}
	if year, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("year: %w", err)
	}
	if month, err = strconv.Atoi(fields[2]); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("month: %w", err)
	}
	if total, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("total: %w", err)
	}
	return obsID, year, month, total, nil
}

// MonthlyTotalFor reads back one observation's monthly rollup.
// Returns ErrNotFound when the month has not been processed.
func (s *Store) MonthlyTotalFor(ctx context.Context, observationID int64, year, month int) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT monthly_total_count FROM monthly_record_count
		WHERE observation_id = ? AND year = ? AND month = ?
	`), observationID, year, month).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("monthly total for %d/%d-%02d: %w", observationID, year, month, err)
	}
	return total, nil
}

// MonthlyRowCount reports how many observations have a rollup row for the
// given month.
func (s *Store) MonthlyRowCount(ctx context.Context, year, month int) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM monthly_record_count WHERE year = ? AND month = ?
	`), year, month).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("monthly row count: %w", err)
	}
	return n, nil
}
