package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// dialect isolates the handful of per-driver differences so queries are
// written once, in ?-placeholder form.
type dialect interface {
	name() string

	// rebind rewrites ?-placeholders into the driver's native style.
	rebind(query string) string

	// minuteOfDayExpr returns a SQL expression yielding the minute of day
	// (0..1439) of the record's created column.
	minuteOfDayExpr() string

	// insertReturningID executes an INSERT (written without a RETURNING
	// clause) and reports the generated id.
	insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error)

	// newMonthlyLoader prepares a set-oriented loader for the
	// monthly_record_count table within tx.
	newMonthlyLoader(ctx context.Context, tx *sql.Tx) (monthlyLoader, error)
}

// monthlyLoader accepts monthly rollup rows one at a time and flushes them
// into monthly_record_count when closed.
type monthlyLoader interface {
	Add(ctx context.Context, observationID int64, year, month int, total int64) error
	Close() error
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres":
		return postgresDialect{}, nil
	case "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (postgresDialect) minuteOfDayExpr() string {
	return "(EXTRACT(HOUR FROM created)::int * 60 + EXTRACT(MINUTE FROM created)::int)"
}

func (d postgresDialect) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, d.rebind(query)+" RETURNING id", args...).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (postgresDialect) newMonthlyLoader(ctx context.Context, tx *sql.Tx) (monthlyLoader, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"monthly_record_count",
		"observation_id", "year", "month", "monthly_total_count",
	))
	if err != nil {
		return nil, fmt.Errorf("prepare copy: %w", err)
	}
	return &copyLoader{stmt: stmt}, nil
}

// copyLoader streams rows through the COPY protocol.
type copyLoader struct {
	stmt *sql.Stmt
}

func (l *copyLoader) Add(ctx context.Context, observationID int64, year, month int, total int64) error {
	_, err := l.stmt.ExecContext(ctx, observationID, year, month, total)
	return err
}

func (l *copyLoader) Close() error {
	// A final Exec with no arguments flushes the COPY buffer.
	if _, err := l.stmt.Exec(); err != nil {
		l.stmt.Close()
		return err
	}
	return l.stmt.Close()
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite3" }

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) minuteOfDayExpr() string {
	return "(CAST(strftime('%H', created) AS INTEGER) * 60 + CAST(strftime('%M', created) AS INTEGER))"
}

func (sqliteDialect) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (sqliteDialect) newMonthlyLoader(ctx context.Context, tx *sql.Tx) (monthlyLoader, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_record_count
		(observation_id, year, month, monthly_total_count)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare monthly insert: %w", err)
	}
	return &insertLoader{stmt: stmt}, nil
}

// insertLoader falls back to row-by-row prepared inserts where COPY is
// unavailable.
type insertLoader struct {
	stmt *sql.Stmt
}

func (l *insertLoader) Add(ctx context.Context, observationID int64, year, month int, total int64) error {
	_, err := l.stmt.ExecContext(ctx, observationID, year, month, total)
	return err
}

func (l *insertLoader) Close() error {
	return l.stmt.Close()
}
