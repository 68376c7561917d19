// Package pgstore is a Postgres-backed master table with the same
// sequence-guarded semantics as the SQLite one in package store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
)

// Master is the master_orders table in Postgres.
type Master struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Option configures a Master.
type Option func(*Master)

// WithClock sets the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(m *Master) {
		m.now = now
	}
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool, opts ...Option) *Master {
	m := &Master{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open connects to dsn, runs migrations and returns a Master that owns
// the pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Master, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, opts...), nil
}

// Close releases the pool.
func (m *Master) Close() {
	m.pool.Close()
}

// Ping checks that the database is reachable.
func (m *Master) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

// Upsert writes rec under key unless the stored row carries a newer
// sequence number. Reports whether the write took effect.
func (m *Master) Upsert(ctx context.Context, key string, rec order.Record, sequence, source string) (bool, error) {
	seq, err := stream.NormalizeSequence(sequence)
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}
	data, err := rec.Canonical()
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}

	const stmt = `
INSERT INTO master_orders (order_id, order_data, seq, deleted, source, updated_at)
VALUES ($1, $2::jsonb, $3, FALSE, $4, $5)
ON CONFLICT (order_id) DO UPDATE SET
	order_data = EXCLUDED.order_data,
	seq = CASE WHEN EXCLUDED.seq = '' THEN master_orders.seq ELSE EXCLUDED.seq END,
	deleted = FALSE,
	source = EXCLUDED.source,
	updated_at = EXCLUDED.updated_at
WHERE EXCLUDED.seq = '' OR EXCLUDED.seq >= master_orders.seq`

	tag, err := m.pool.Exec(ctx, stmt, key, string(data), seq, source, m.now())
	if err != nil {
		return false, fmt.Errorf("master upsert: %w", err)
	}
	return applied(tag), nil
}

// Delete tombstones key unless the stored row carries a newer sequence
// number. Reports whether it took effect.
func (m *Master) Delete(ctx context.Context, key, sequence, source string) (bool, error) {
	seq, err := stream.NormalizeSequence(sequence)
	if err != nil {
		return false, fmt.Errorf("master delete: %w", err)
	}

	const stmt = `
INSERT INTO master_orders (order_id, order_data, seq, deleted, source, updated_at)
VALUES ($1, NULL, $2, TRUE, $3, $4)
ON CONFLICT (order_id) DO UPDATE SET
	order_data = NULL,
	seq = CASE WHEN EXCLUDED.seq = '' THEN master_orders.seq ELSE EXCLUDED.seq END,
	deleted = TRUE,
	source = EXCLUDED.source,
	updated_at = EXCLUDED.updated_at
WHERE EXCLUDED.seq = '' OR EXCLUDED.seq >= master_orders.seq`

	tag, err := m.pool.Exec(ctx, stmt, key, seq, source, m.now())
	if err != nil {
		return false, fmt.Errorf("master delete: %w", err)
	}
	return applied(tag), nil
}

// Get returns the live record for key.
// Returns an order.KindNotFound error if absent or deleted.
func (m *Master) Get(ctx context.Context, key string) (order.Record, error) {
	const query = `SELECT order_data::text FROM master_orders WHERE order_id = $1 AND NOT deleted`

	var data string
	err := m.pool.QueryRow(ctx, query, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (m *Master) Snapshot(ctx context.Context) ([]store.MasterRow, error) {
	const query = `
SELECT order_id, order_data::text, seq, source, deleted
FROM master_orders
ORDER BY order_id COLLATE "C" ASC`

	rows, err := m.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("master snapshot: %w", err)
	}
	defer rows.Close()

	var out []store.MasterRow
	for rows.Next() {
		var (
			row  store.MasterRow
			data *string
			seq  string
		)
		if err := rows.Scan(&row.Key, &data, &seq, &row.Source, &row.Deleted); err != nil {
			return nil, fmt.Errorf("master snapshot: scan: %w", err)
		}
		if data != nil {
			rec, err := order.DecodeRecord([]byte(*data))
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

func applied(tag pgconn.CommandTag) bool {
	return tag.RowsAffected() > 0
}
