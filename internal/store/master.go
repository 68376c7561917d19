package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/stream"
)

// Master is the consolidated master table. It shares the Store's
// connection, so a single-node deployment can keep both in one file;
// pointing Open at a second path gives a separate master database.
//
// Every row remembers the sequence number of the change that produced
// it. Writes carrying an older sequence number are skipped, which makes
// replays and out-of-order redelivery converge on feed order.
type Master struct {
	s *Store
}

// Master returns the master table view of s.
func (s *Store) Master() *Master {
	return &Master{s: s}
}

// MasterRow is one master_orders row as returned by Snapshot.
type MasterRow struct {
	Key      string       `json:"order_id" yaml:"order_id"`
	Record   order.Record `json:"record,omitempty" yaml:"record,omitempty"`
	Sequence string       `json:"seq,omitempty" yaml:"seq,omitempty"`
	Source   string       `json:"source,omitempty" yaml:"source,omitempty"`
	Deleted  bool         `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Upsert writes rec under key unless the stored row carries a newer
// sequence number. An empty sequence applies unconditionally and keeps
// the stored one. Reports whether the write took effect.
func (m *Master) Upsert(ctx context.Context, key string, rec order.Record, sequence, source string) (bool, error) {
	seq, err := stream.NormalizeSequence(sequence)
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}

	result, err := m.s.db.ExecContext(ctx, `
		INSERT INTO master_orders (order_id, order_data, seq, deleted, source, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			order_data = excluded.order_data,
			seq = CASE WHEN excluded.seq = '' THEN master_orders.seq ELSE excluded.seq END,
			deleted = 0,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE excluded.seq = '' OR excluded.seq >= master_orders.seq
	`, key, data, seq, source, m.s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}
	return applied(result)
}

// Delete tombstones key unless the stored row carries a newer sequence
// number. Deleting an absent key leaves a tombstone so that an older
// INSERT delivered later stays hidden. Reports whether it took effect.
func (m *Master) Delete(ctx context.Context, key, sequence, source string) (bool, error) {
	seq, err := stream.NormalizeSequence(sequence)
	if err != nil {
		return false, fmt.Errorf("master delete: %w", err)
	}

	result, err := m.s.db.ExecContext(ctx, `
		INSERT INTO master_orders (order_id, order_data, seq, deleted, source, updated_at)
		VALUES (?, NULL, ?, 1, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			order_data = NULL,
			seq = CASE WHEN excluded.seq = '' THEN master_orders.seq ELSE excluded.seq END,
			deleted = 1,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE excluded.seq = '' OR excluded.seq >= master_orders.seq
	`, key, seq, source, m.s.now().Unix())
	if err != nil {
		return false, fmt.Errorf("master delete: %w", err)
	}
	return applied(result)
}

// Get returns the live record for key.
// Returns an order.KindNotFound error if absent or deleted.
func (m *Master) Get(ctx context.Context, key string) (order.Record, error) {
	var data string
	err := m.s.db.QueryRowContext(ctx, `
		SELECT order_data FROM master_orders WHERE order_id = ? AND deleted = 0
	`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.NewNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("master get: %w", err)
	}

	rec, err := order.DecodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("master get: %w", err)
	}
	return rec, nil
}

// Snapshot returns every row, tombstones included, ordered by key.
func (m *Master) Snapshot(ctx context.Context) ([]MasterRow, error) {
	rows, err := m.s.db.QueryContext(ctx, `
		SELECT order_id, order_data, seq, source, deleted
		FROM master_orders
		ORDER BY order_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("master snapshot: %w", err)
	}
	defer rows.Close()

	var out []MasterRow
	for rows.Next() {
		var (
			row  MasterRow
			data sql.NullString
			seq  string
		)
		if err := rows.Scan(&row.Key, &data, &seq, &row.Source, &row.Deleted); err != nil {
			return nil, fmt.Errorf("master snapshot: scan: %w", err)
		}
		if data.Valid {
			rec, err := order.DecodeRecord([]byte(data.String))
			if err != nil {
				return nil, fmt.Errorf("master snapshot: %s: %w", row.Key, err)
			}
			row.Record = rec
		}
		row.Sequence = stream.TrimSequence(seq)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("master snapshot: %w", err)
	}
	return out, nil
}

func applied(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
