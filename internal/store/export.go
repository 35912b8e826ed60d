package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TransducerNames returns the sorted channel names registered for an
// observation.
func (s *Store) TransducerNames(ctx context.Context, observationID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT name FROM transducer WHERE observation_id = ? ORDER BY name ASC
	`), observationID)
	if err != nil {
		return nil, fmt.Errorf("transducer names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan transducer name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transducer names: %w", err)
	}
	return names, nil
}

// recordWindow builds the WHERE clause for an observation's records in an
// optional [from, until) window. Zero times mean unbounded.
func recordWindow(observationID int64, from, until time.Time) (cond string, args []any) {
	conds := []string{"observation_id = ?"}
	args = []any{observationID}
	if !from.IsZero() {
		conds = append(conds, "created >= ?")
		args = append(args, from)
	}
	if !until.IsZero() {
		conds = append(conds, "created < ?")
		args = append(args, until)
	}
	return strings.Join(conds, " AND "), args
}

// CountRecords returns the number of records for an observation within
// the optional time window.
func (s *Store) CountRecords(ctx context.Context, observationID int64, from, until time.Time) (int64, error) {
	cond, args := recordWindow(observationID, from, until)
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(
		"SELECT COUNT(*) FROM record WHERE "+cond,
	), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// RecordBatch reads one batch of an observation's records within the
// optional time window, in (created, id) order, starting strictly after
// the (afterCreated, afterID) cursor position. A zero afterCreated means
// start from the beginning. The exporter pages through records with this
// rather than holding one cursor open for the whole export, so value
// resolution queries can run between batches on the same connection.
func (s *Store) RecordBatch(ctx context.Context, observationID int64, from, until time.Time, afterCreated time.Time, afterID int64, limit int) ([]Record, error) {
	cond, args := recordWindow(observationID, from, until)
	if !afterCreated.IsZero() {
		cond += " AND (created > ? OR (created = ? AND id > ?))"
		args = append(args, afterCreated, afterCreated, afterID)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.q(
		"SELECT id, is_parse_error, created FROM record WHERE "+cond+
			" ORDER BY created ASC, id ASC LIMIT ?",
	), args...)
	if err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}
	defer rows.Close()

	batch := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.IsParseError, &r.Created); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Created = r.Created.UTC()
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}
	return batch, nil
}

// inPlaceholders returns "(?, ?, ...)" with n placeholders.
func inPlaceholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

// TransducerValues resolves every channel value for the given record ids
// in one round trip.
func (s *Store) TransducerValues(ctx context.Context, recordIDs []int64) ([]TValue, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(recordIDs))
	for i, id := range recordIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT record_id, transducer, value_type,
		       string_value, int_value, float_value, decimal_value,
		       large_object_id, transducer_timestamp
		FROM transducer_raw_value
		WHERE record_id IN `+inPlaceholders(len(recordIDs)),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("transducer values: %w", err)
	}
	defer rows.Close()

	var values []TValue
	for rows.Next() {
		var (
			v       TValue
			str     sql.NullString
			i       sql.NullInt64
			f       sql.NullFloat64
			decimal sql.NullString
			loid    sql.NullInt64
		)
		if err := rows.Scan(&v.RecordID, &v.Transducer, &v.Type, &str, &i, &f, &decimal, &loid, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transducer value: %w", err)
		}
		v.Str = str.String
		v.Int = i.Int64
		v.Float = f.Float64
		v.Decimal = decimal.String
		v.LargeObjectID = loid.Int64
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transducer values: %w", err)
	}
	return values, nil
}

// LargeObjects fetches the given payloads in one round trip. Content is
// returned as stored; callers decompress gzipped payloads.
func (s *Store) LargeObjects(ctx context.Context, ids []int64) ([]LargeObjectRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, content, is_gzipped FROM large_object
		WHERE id IN `+inPlaceholders(len(ids)),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("large objects: %w", err)
	}
	defer rows.Close()

	var objs []LargeObjectRow
	for rows.Next() {
		var lo LargeObjectRow
		if err := rows.Scan(&lo.ID, &lo.Content, &lo.IsGzipped); err != nil {
			return nil, fmt.Errorf("scan large object: %w", err)
		}
		objs = append(objs, lo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("large objects: %w", err)
	}
	return objs, nil
}
