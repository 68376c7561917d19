package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadCheckpoint returns the last feed seq delivered by the named relay,
// or 0 if it has never saved one.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_seq FROM replication_checkpoints WHERE name = ?
	`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint %q: %w", name, err)
	}
	return seq, nil
}

// SaveCheckpoint records seq for the named relay. Checkpoints only move
// forward; saving an older seq is a no-op.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replication_checkpoints (name, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at
		WHERE excluded.last_seq > replication_checkpoints.last_seq
	`, name, seq, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", name, err)
	}
	return nil
}
