package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// FindObservation resolves an observation's internal id by its
// (server, node) identity. Returns ErrNotFound when no such observation
// is registered.
func (s *Store) FindObservation(ctx context.Context, server, node string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id FROM observation WHERE sox_server = ? AND sox_node = ?
	`), server, node).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find observation: %w", err)
	}
	return id, nil
}

// ObservationIDs returns the ids of every registered observation in
// ascending order. The rollup engines use this for zero-fill passes.
func (s *Store) ObservationIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM observation ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan observation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return ids, nil
}

// CreateObservation registers an observation. The recorder owns this in
// production; it exists here for fixtures and local setup.
func (s *Store) CreateObservation(ctx context.Context, server, node string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create observation: begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := s.d.insertReturningID(ctx, tx, `
		INSERT INTO observation (sox_server, sox_node, created)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, server, node)
	if err != nil {
		return 0, fmt.Errorf("create observation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create observation: commit: %w", err)
	}
	return id, nil
}
