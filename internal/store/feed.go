package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pos/internal/stream"
)

// Feed metadata rendered into every record.
const (
	FeedEventSource  = "pos:store"
	FeedEventVersion = "1.1"
)

// DefaultFeedLimit bounds ReadFeed when limit <= 0.
const DefaultFeedLimit = 100

// ReadFeed returns up to limit change records with seq > after, in feed
// order, shaped like a stream trigger delivery.
func (s *Store) ReadFeed(ctx context.Context, after int64, limit int) ([]stream.Record, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_id, event_name, order_id, new_image, old_image, created_at
		FROM change_feed
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	defer rows.Close()

	var records []stream.Record
	for rows.Next() {
		var (
			seq                int64
			eventID, eventName string
			orderID            string
			newImage, oldImage sql.NullString
			createdAt          int64
		)
		if err := rows.Scan(&seq, &eventID, &eventName, &orderID, &newImage, &oldImage, &createdAt); err != nil {
			return nil, fmt.Errorf("read feed: scan: %w", err)
		}

		rec, err := s.feedRecord(seq, eventID, eventName, orderID, newImage, oldImage, createdAt)
		if err != nil {
			return nil, fmt.Errorf("read feed: seq %d: %w", seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	return records, nil
}

func (s *Store) feedRecord(
	seq int64,
	eventID, eventName, orderID string,
	newImage, oldImage sql.NullString,
	createdAt int64,
) (stream.Record, error) {
	newImg, err := decodeImage(newImage)
	if err != nil {
		return stream.Record{}, err
	}
	oldImg, err := decodeImage(oldImage)
	if err != nil {
		return stream.Record{}, err
	}

	return stream.Record{
		EventID:        eventID,
		EventName:      stream.EventName(eventName),
		EventVersion:   FeedEventVersion,
		EventSource:    FeedEventSource,
		AWSRegion:      s.region,
		EventSourceARN: s.SourceARN(),
		Change: stream.Change{
			ApproximateCreationDateTime: createdAt,
			Keys:                        keyImage(orderID),
			NewImage:                    newImg,
			OldImage:                    oldImg,
			SequenceNumber:              stream.FormatSequence(seq),
			SizeBytes:                   int64(len(newImage.String) + len(oldImage.String)),
			StreamViewType:              stream.ViewNewAndOldImages,
		},
	}, nil
}

// LastFeedSeq returns the highest seq in the change feed, or 0 if empty.
func (s *Store) LastFeedSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM change_feed`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last feed seq: %w", err)
	}
	return seq.Int64, nil
}
