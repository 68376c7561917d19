package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/govalues/decimal"

	"github.com/roach88/pos/internal/attr"
)

// Well-known field names.
const (
	FieldOrderID   = "order_id"
	FieldItems     = "items"
	FieldTotal     = "total"
	FieldTimestamp = "timestamp"
)

// DefaultRequired is the required-key set of the strict intake.
var DefaultRequired = []string{FieldOrderID, FieldItems, FieldTotal, FieldTimestamp}

// Record is an order as stored: every field the client sent, numbers kept
// as json.Number so their text is preserved.
type Record map[string]any

// ID returns the order_id field, or "" if absent or not a string.
func (r Record) ID() string {
	id, _ := r[FieldOrderID].(string)
	return id
}

// Canonical returns the canonical JSON encoding of r.
func (r Record) Canonical() ([]byte, error) {
	return attr.MarshalCanonical(map[string]any(r))
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order is the typed view of a strict-mode record. Record holds the full
// payload, including fields this type does not name.
type Order struct {
	ID        string
	Items     []any
	Total     decimal.Decimal
	Timestamp string
	Record    Record
}

// DecodeRecord decodes a stored record.
func DecodeRecord(data []byte) (Record, error) {
	v, err := attr.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode record: want object, got %T", v)
	}
	return Record(m), nil
}

// ParseRaw validates a permissive-mode payload: any non-empty JSON object.
func ParseRaw(data []byte) (Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewValidationError("no data provided")
	}
	v, err := attr.DecodeJSON(data)
	if err != nil {
		return nil, NewValidationError("invalid JSON body")
	}
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, NewValidationError("no data provided")
	}
	return Record(m), nil
}

// Parse validates a strict-mode payload against the required-key set.
// order_id is always required since it is the primary key. Missing keys
// are reported together, in required-set order.
func Parse(data []byte, required []string) (Order, error) {
	rec, err := ParseRaw(data)
	if err != nil {
		return Order{}, err
	}

	if !slices.Contains(required, FieldOrderID) {
		required = append([]string{FieldOrderID}, required...)
	}
	var missing []string
	for _, k := range required {
		if _, ok := rec[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Order{}, NewValidationError("missing required fields", missing...)
	}

	o := Order{Record: rec}

	id, ok := rec[FieldOrderID].(string)
	if !ok || id == "" {
		return Order{}, NewValidationError("order_id must be a non-empty string")
	}
	o.ID = id

	if v, ok := rec[FieldItems]; ok {
		items, ok := v.([]any)
		if !ok {
			return Order{}, NewValidationError("items must be an array")
		}
		o.Items = items
	}

	if v, ok := rec[FieldTotal]; ok {
		n, ok := v.(json.Number)
		if !ok {
			return Order{}, NewValidationError("total must be a number")
		}
		d, err := decimal.Parse(string(n))
		if err != nil {
			return Order{}, NewValidationError("total is not a valid amount")
		}
		o.Total = d
	}

	if v, ok := rec[FieldTimestamp]; ok {
		ts, ok := v.(string)
		if !ok || ts == "" {
			return Order{}, NewValidationError("timestamp must be a non-empty string")
		}
		o.Timestamp = ts
	}

	return o, nil
}
