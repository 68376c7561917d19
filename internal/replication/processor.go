package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/pos/internal/attr"
	"github.com/roach88/pos/internal/order"
	"github.com/roach88/pos/internal/stream"
)

// DefaultKeyAttribute is the attribute holding the master table key.
const DefaultKeyAttribute = order.FieldOrderID

// Master is the write side of a master table. Both store.Master and
// pgstore.Master implement it.
type Master interface {
	Upsert(ctx context.Context, key string, rec order.Record, sequence, source string) (bool, error)
	Delete(ctx context.Context, key, sequence, source string) (bool, error)
}

// Processor applies change records to a Master. It holds no per-batch
// state and is safe for concurrent use.
type Processor struct {
	master  Master
	keyAttr string
	logger  *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithKeyAttribute sets the attribute used as the master key.
func WithKeyAttribute(name string) ProcessorOption {
	return func(p *Processor) {
		if name != "" {
			p.keyAttr = name
		}
	}
}

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a processor writing to master.
func NewProcessor(master Master, opts ...ProcessorOption) *Processor {
	p := &Processor{
		master:  master,
		keyAttr: DefaultKeyAttribute,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome is what happened to one record.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeIgnored Outcome = "ignored"
	OutcomeFailed  Outcome = "failed"
)

// Result summarizes a batch.
type Result struct {
	Processed int       `json:"processed"`
	Applied   int       `json:"applied"`
	Stale     int       `json:"stale"`
	Ignored   int       `json:"ignored"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Failure describes one record that could not be applied.
type Failure struct {
	Index    int    `json:"index"`
	EventID  string `json:"event_id,omitempty"`
	Key      string `json:"key,omitempty"`
	Sequence string `json:"sequence,omitempty"`
	Reason   string `json:"reason"`
}

// Identifier is the id a trigger retries by: the sequence number, or the
// event id when the record had none.
func (f Failure) Identifier() string {
	if f.Sequence != "" {
		return f.Sequence
	}
	return f.EventID
}

// PartialFailure is returned by Apply when at least one record failed.
// The other records were still attempted.
type PartialFailure struct {
	Total    int
	Failures []Failure
}

func (e *PartialFailure) Error() string {
	first := e.Failures[0]
	return fmt.Sprintf("%d of %d records failed (first: record %d key=%q: %s)",
		len(e.Failures), e.Total, first.Index, first.Key, first.Reason)
}

// Apply processes records in order. Every record is attempted; when any
// fail the error is a *PartialFailure listing them, and the Result still
// counts what succeeded.
func (p *Processor) Apply(ctx context.Context, records []stream.Record) (Result, error) {
	var res Result

	for i, rec := range records {
		res.Processed++

		outcome, key, err := p.applyRecord(ctx, rec)
		switch outcome {
		case OutcomeApplied:
			res.Applied++
		case OutcomeStale:
			res.Stale++
		case OutcomeIgnored:
			res.Ignored++
		case OutcomeFailed:
			f := Failure{
				Index:    i,
				EventID:  rec.EventID,
				Key:      key,
				Sequence: rec.Change.SequenceNumber,
				Reason:   err.Error(),
			}
			res.Failures = append(res.Failures, f)
			p.logger.Warn("replication record failed",
				"index", i,
				"event_id", rec.EventID,
				"event_name", rec.EventName,
				"key", key,
				"error", err,
			)
			continue
		}

		p.logger.Debug("replication record",
			"index", i,
			"event_name", rec.EventName,
			"key", key,
			"seq", rec.Change.SequenceNumber,
			"outcome", outcome,
		)
	}

	if len(res.Failures) > 0 {
		return res, &PartialFailure{Total: len(records), Failures: res.Failures}
	}
	return res, nil
}

func (p *Processor) applyRecord(ctx context.Context, rec stream.Record) (Outcome, string, error) {
	source := rec.EventSourceARN
	if source == "" {
		source = rec.EventSource
	}

	switch rec.EventName {
	case stream.Insert, stream.Modify:
		key, err := p.key(rec.Change.Keys, rec.Change.NewImage)
		if err != nil {
			return OutcomeFailed, key, err
		}
		if rec.Change.NewImage == nil {
			return OutcomeFailed, key, errors.New("record has no NewImage")
		}
		img, err := attr.DecodeImage(rec.Change.NewImage)
		if err != nil {
			return OutcomeFailed, key, err
		}

		ok, err := p.master.Upsert(ctx, key, order.Record(attr.UnwrapMap(img)), rec.Change.SequenceNumber, source)
		if err != nil {
			return OutcomeFailed, key, err
		}
		return outcomeOf(ok), key, nil

	case stream.Remove:
		key, err := p.key(rec.Change.Keys, rec.Change.OldImage)
		if err != nil {
			return OutcomeFailed, key, err
		}
		ok, err := p.master.Delete(ctx, key, rec.Change.SequenceNumber, source)
		if err != nil {
			return OutcomeFailed, key, err
		}
		return outcomeOf(ok), key, nil

	default:
		return OutcomeIgnored, "", nil
	}
}

// key reads the key attribute from every image that has it and fails
// when they disagree. Only the key attribute is decoded, so a malformed
// attribute elsewhere in the image still leaves the key available for
// failure reports.
func (p *Processor) key(images ...attr.RawImage) (string, error) {
	var key string
	found := false
	for _, img := range images {
		k, ok, err := p.keyOf(img)
		if err != nil {
			return key, err
		}
		if !ok {
			continue
		}
		if found && k != key {
			return key, fmt.Errorf("key mismatch: key attribute %q is %q in Keys but %q in the image", p.keyAttr, key, k)
		}
		key, found = k, true
	}
	if !found {
		return "", fmt.Errorf("key attribute %q not found", p.keyAttr)
	}
	return key, nil
}

func (p *Processor) keyOf(img attr.RawImage) (string, bool, error) {
	if img == nil {
		return "", false, nil
	}
	v, err := img.Lookup(p.keyAttr)
	if errors.Is(err, attr.ErrNoAttribute) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("key attribute %q: %w", p.keyAttr, err)
	}
	switch k := v.(type) {
	case attr.String:
		if k == "" {
			return "", false, fmt.Errorf("key attribute %q is empty", p.keyAttr)
		}
		return string(k), true, nil
	case attr.Number:
		return k.String(), true, nil
	default:
		return "", false, fmt.Errorf("key attribute %q has type %s, want S or N", p.keyAttr, v.Tag())
	}
}

func outcomeOf(applied bool) Outcome {
	if applied {
		return OutcomeApplied
	}
	return OutcomeStale
}
