package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/pos/internal/attr"
)

// EventName is the kind of change a record describes.
type EventName string

const (
	Insert EventName = "INSERT"
	Modify EventName = "MODIFY"
	Remove EventName = "REMOVE"
)

// StreamViewType values. The order store always emits both images.
const (
	ViewNewAndOldImages = "NEW_AND_OLD_IMAGES"
	ViewKeysOnly        = "KEYS_ONLY"
)

// Known reports whether n is one of INSERT, MODIFY, REMOVE.
func (n EventName) Known() bool {
	switch n {
	case Insert, Modify, Remove:
		return true
	}
	return false
}

// Event is a batch of records delivered to a trigger in one invocation.
type Event struct {
	Records []Record `json:"Records"`
}

// Record is a single change.
type Record struct {
	EventID        string    `json:"eventID,omitempty"`
	EventName      EventName `json:"eventName"`
	EventVersion   string    `json:"eventVersion,omitempty"`
	EventSource    string    `json:"eventSource,omitempty"`
	AWSRegion      string    `json:"awsRegion,omitempty"`
	EventSourceARN string    `json:"eventSourceARN,omitempty"`
	Change         Change    `json:"dynamodb"`
}

// Change holds the images and ordering metadata of a record.
type Change struct {
	ApproximateCreationDateTime int64         `json:"ApproximateCreationDateTime,omitempty"`
	Keys                        attr.RawImage `json:"Keys,omitempty"`
	NewImage                    attr.RawImage `json:"NewImage,omitempty"`
	OldImage                    attr.RawImage `json:"OldImage,omitempty"`
	SequenceNumber              string        `json:"SequenceNumber,omitempty"`
	SizeBytes                   int64         `json:"SizeBytes,omitempty"`
	StreamViewType              string        `json:"StreamViewType,omitempty"`
}

// Identifier returns the id a trigger uses to report a failed record:
// the sequence number, or the event id when there is none.
func (r Record) Identifier() string {
	if r.Change.SequenceNumber != "" {
		return r.Change.SequenceNumber
	}
	return r.EventID
}

// Decode reads a batch. Both {"Records": [...]} and a bare array of
// records are accepted.
func Decode(r io.Reader) (Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Event{}, fmt.Errorf("decode event: empty body")
	}

	if data[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return Event{}, fmt.Errorf("decode event: %w", err)
		}
		return Event{Records: recs}, nil
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// sequenceWidth fits the 38 digit numbers a stream may assign, with margin.
const sequenceWidth = 40

// NormalizeSequence left-pads a decimal sequence number with zeros so
// that byte order equals numeric order. "" stays "" (unordered).
func NormalizeSequence(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid sequence number %q", s)
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	if len(s) > sequenceWidth {
		return "", fmt.Errorf("sequence number %q exceeds %d digits", s, sequenceWidth)
	}
	return strings.Repeat("0", sequenceWidth-len(s)) + s, nil
}

// CompareSequence orders two sequence numbers numerically.
// Invalid inputs sort before valid ones.
func CompareSequence(a, b string) int {
	na, errA := NormalizeSequence(a)
	nb, errB := NormalizeSequence(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return strings.Compare(na, nb)
}

// FormatSequence renders a feed position as a sequence number.
func FormatSequence(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

// TrimSequence undoes NormalizeSequence's padding for display.
func TrimSequence(s string) string {
	if s == "" {
		return ""
	}
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
