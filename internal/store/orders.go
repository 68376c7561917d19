package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/stream"
)

// Change reports what an order write appended to the feed.
type Change struct {
	// Seq is the feed position of the row's latest change. When nothing
	// was appended it is the position of the previous change.
	Seq int64

	// Event is the appended event, or "" when the write changed nothing.
	Event stream.EventName
}

// Appended reports whether the write produced a feed record.
func (c Change) Appended() bool {
	return c.Event != ""
}

// Sequence returns Seq as a feed sequence number.
func (c Change) Sequence() string {
	return stream.FormatSequence(c.Seq)
}

// PutOrder upserts rec under its order_id and appends the matching INSERT
// or MODIFY to the change feed in the same transaction.
//
// Writing a record identical to the stored one appends nothing, so
// resubmissions never show up as feed traffic.
func (s *Store) PutOrder(ctx context.Context, rec order.Record) (Change, error) {
	id := rec.ID()
	if id == "" {
		return Change{}, fmt.Errorf("put order: missing order_id")
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return Change{}, fmt.Errorf("put order: %w", err)
	}
	hash, err := attr.ImageHash(rec)
	if err != nil {
		return Change{}, fmt.Errorf("put order: %w", err)
	}
	newImage, err := encodeImage(rec)
	if err != nil {
		return Change{}, fmt.Errorf("put order: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, fmt.Errorf("put order: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var oldData, oldHash string
	var oldSeq int64
	err = tx.QueryRowContext(ctx, `
		SELECT order_data, image_hash, seq FROM orders WHERE order_id = ?
	`, id).Scan(&oldData, &oldHash, &oldSeq)

	event := stream.Insert
	var oldImage sql.NullString
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Change{}, fmt.Errorf("put order: select existing: %w", err)
	case oldHash == hash:
		if err := tx.Commit(); err != nil {
			return Change{}, fmt.Errorf("put order: commit (unchanged): %w", err)
		}
		return Change{Seq: oldSeq}, nil
	default:
		event = stream.Modify
		oldRec, err := order.DecodeRecord([]byte(oldData))
		if err != nil {
			return Change{}, fmt.Errorf("put order: %w", err)
		}
		img, err := encodeImage(oldRec)
		if err != nil {
			return Change{}, fmt.Errorf("put order: %w", err)
		}
		oldImage = sql.NullString{String: img, Valid: true}
	}

	seq, err := s.appendChange(ctx, tx, event, id, sql.NullString{String: newImage, Valid: true}, oldImage)
	if err != nil {
		return Change{}, fmt.Errorf("put order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, order_data, image_hash, seq, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			order_data = excluded.order_data,
			image_hash = excluded.image_hash,
			seq = excluded.seq,
			updated_at = excluded.updated_at
	`, id, data, hash, seq, s.now().Unix())
	if err != nil {
		return Change{}, fmt.Errorf("put order: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Change{}, fmt.Errorf("put order: commit: %w", err)
	}

	return Change{Seq: seq, Event: event}, nil
}

// GetOrder returns the stored record for orderID.
// Returns an order.KindNotFound error if absent.
func (s *Store) GetOrder(ctx context.Context, orderID string) (order.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT order_data FROM orders WHERE order_id = ?
	`, orderID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.NewNotFoundError(orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	rec, err := order.DecodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return rec, nil
}

// ListOrders returns every stored record ordered by order_id.
func (s *Store) ListOrders(ctx context.Context) ([]order.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_data FROM orders ORDER BY order_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []order.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list orders: scan: %w", err)
		}
		rec, err := order.DecodeRecord([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// DeleteOrder removes orderID and appends a REMOVE carrying the prior
// image. Returns an order.KindNotFound error if absent.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) (Change, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Change{}, fmt.Errorf("delete order: begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldData string
	err = tx.QueryRowContext(ctx, `
		SELECT order_data FROM orders WHERE order_id = ?
	`, orderID).Scan(&oldData)
	if errors.Is(err, sql.ErrNoRows) {
		return Change{}, order.NewNotFoundError(orderID)
	}
	if err != nil {
		return Change{}, fmt.Errorf("delete order: select existing: %w", err)
	}

	oldRec, err := order.DecodeRecord([]byte(oldData))
	if err != nil {
		return Change{}, fmt.Errorf("delete order: %w", err)
	}
	oldImage, err := encodeImage(oldRec)
	if err != nil {
		return Change{}, fmt.Errorf("delete order: %w", err)
	}

	seq, err := s.appendChange(ctx, tx, stream.Remove, orderID, sql.NullString{}, sql.NullString{String: oldImage, Valid: true})
	if err != nil {
		return Change{}, fmt.Errorf("delete order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE order_id = ?`, orderID); err != nil {
		return Change{}, fmt.Errorf("delete order: delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Change{}, fmt.Errorf("delete order: commit: %w", err)
	}

	return Change{Seq: seq, Event: stream.Remove}, nil
}

// appendChange inserts a change_feed row inside tx and returns its seq.
func (s *Store) appendChange(
	ctx context.Context,
	tx *sql.Tx,
	event stream.EventName,
	orderID string,
	newImage, oldImage sql.NullString,
) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO change_feed (event_id, event_name, order_id, new_image, old_image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		s.ids.Generate(),
		string(event),
		orderID,
		newImage,
		oldImage,
		s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("append change: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append change: last insert id: %w", err)
	}
	return seq, nil
}
