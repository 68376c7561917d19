package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/pos/internal/order"
)

// AppendRaw stores rec verbatim under a new surrogate id and returns it.
// Permissive intake has no natural key, so every call inserts a new row
// and nothing is appended to the change feed.
func (s *Store) AppendRaw(ctx context.Context, rec order.Record) (int64, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return 0, fmt.Errorf("append raw: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_orders (order_data, created_at) VALUES (?, ?)
	`, data, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("append raw: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append raw: last insert id: %w", err)
	}
	return id, nil
}

// GetRaw returns the payload stored under id.
func (s *Store) GetRaw(ctx context.Context, id int64) (order.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT order_data FROM raw_orders WHERE id = ?
	`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.NewNotFoundError(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("get raw: %w", err)
	}
	return order.DecodeRecord([]byte(data))
}

// CountRaw returns the number of permissive submissions stored.
func (s *Store) CountRaw(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count raw: %w", err)
	}
	return n, nil
}
