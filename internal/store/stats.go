package store

import (
	"context"
	"fmt"
	"time"
)

// StatSnapshot is one measurement of overall recorder health, inserted
// into recorder_stat by the stats batch.
type StatSnapshot struct {
	TotalRecordCount        int64
	TotalObservationCount   int64
	TotalLargeObjectCount   int64
	TotalTransducerCount    int64
	AvgTransducersPerObs    float64
	TotalDiskUsageKBytes    int64
	Recent1MinWarnLogCount  int64
	Recent1MinErrorLogCount int64
	Recent1MinRecordCount   int64
	Created                 time.Time
}

func (s *Store) countAll(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(id) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// MeasureStat gathers the table counts and recent-activity counters of a
// snapshot. Disk usage is filled in by the caller; the store does not
// know where the database keeps its files.
func (s *Store) MeasureStat(ctx context.Context, now time.Time) (*StatSnapshot, error) {
	snap := &StatSnapshot{Created: now}

	var err error
	if snap.TotalRecordCount, err = s.countAll(ctx, "record"); err != nil {
		return nil, err
	}
	if snap.TotalObservationCount, err = s.countAll(ctx, "observation"); err != nil {
		return nil, err
	}
	if snap.TotalLargeObjectCount, err = s.countAll(ctx, "large_object"); err != nil {
		return nil, err
	}
	if snap.TotalTransducerCount, err = s.countAll(ctx, "transducer"); err != nil {
		return nil, err
	}
	if snap.TotalObservationCount > 0 {
		snap.AvgTransducersPerObs = float64(snap.TotalTransducerCount) / float64(snap.TotalObservationCount)
	}

	minuteAgo := now.Add(-time.Minute)

	logCount := func(level int) (int64, error) {
		var n int64
		err := s.db.QueryRowContext(ctx, s.q(`
			SELECT COUNT(id) FROM event_log
			WHERE log_level = ? AND logged_at >= ? AND logged_at < ?
		`), level, minuteAgo, now).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count event_log level %d: %w", level, err)
		}
		return n, nil
	}
	if snap.Recent1MinWarnLogCount, err = logCount(logLevelWarn); err != nil {
		return nil, err
	}
	if snap.Recent1MinErrorLogCount, err = logCount(logLevelError); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(id) FROM record WHERE created >= ? AND created < ?
	`), minuteAgo, now).Scan(&snap.Recent1MinRecordCount)
	if err != nil {
		return nil, fmt.Errorf("count recent records: %w", err)
	}

	return snap, nil
}

// Recorder event_log severity levels.
const (
	logLevelWarn  = 3
	logLevelError = 4
)

// InsertStat persists a snapshot.
func (s *Store) InsertStat(ctx context.Context, snap *StatSnapshot) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO recorder_stat (
			total_record_count, total_observation_count,
			total_large_object_count, total_transducer_count,
			average_transducers_per_observation, total_disk_usage_kbytes,
			recent_1min_warn_log_count, recent_1min_error_log_count,
			recent_1min_record_count, created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		snap.TotalRecordCount,
		snap.TotalObservationCount,
		snap.TotalLargeObjectCount,
		snap.TotalTransducerCount,
		snap.AvgTransducersPerObs,
		snap.TotalDiskUsageKBytes,
		snap.Recent1MinWarnLogCount,
		snap.Recent1MinErrorLogCount,
		snap.Recent1MinRecordCount,
		snap.Created,
	)
	if err != nil {
		return fmt.Errorf("insert stat: %w", err)
	}
	return nil
}
