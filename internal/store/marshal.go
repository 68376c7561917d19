package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/order"
)

// encodeImage renders a record as the envelope-encoded TEXT stored in
// change_feed.new_image / old_image.
func encodeImage(rec order.Record) (string, error) {
	img, err := attr.WrapMap(rec)
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	raw, err := attr.EncodeImage(img)
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	data, err := raw.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return string(data), nil
}

// decodeImage parses an image column. NULL yields a nil image.
func decodeImage(col sql.NullString) (attr.RawImage, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var raw attr.RawImage
	if err := json.Unmarshal([]byte(col.String), &raw); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return raw, nil
}

// encodeRecord renders a record as canonical JSON TEXT for order_data.
func encodeRecord(rec order.Record) (string, error) {
	data, err := rec.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(data), nil
}

// keyImage is the Keys section of a feed record.
func keyImage(orderID string) attr.RawImage {
	env, _ := attr.Encode(attr.String(orderID))
	return attr.RawImage{order.FieldOrderID: env}
}
