package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/pos/internal/stream"
)

// Relay defaults.
const (
	DefaultRelayName    = "master"
	DefaultBatchSize    = 100
	DefaultPollInterval = time.Second
)

// FeedSource reads a change feed after a position.
// Implemented by *store.Store.
type FeedSource interface {
	ReadFeed(ctx context.Context, after int64, limit int) ([]stream.Record, error)
}

// Checkpoints persists relay positions.
// Implemented by *store.Store.
type Checkpoints interface {
	LoadCheckpoint(ctx context.Context, name string) (int64, error)
	SaveCheckpoint(ctx context.Context, name string, seq int64) error
}

// Sink receives feed batches. A nil error means every record was handled.
type Sink interface {
	Deliver(ctx context.Context, ev stream.Event) error
}

// ProcessorSink delivers batches to an in-process Processor.
type ProcessorSink struct {
	Processor *Processor
}

// Deliver applies the batch. A *PartialFailure is returned as is so the
// relay can keep the successful prefix.
func (s ProcessorSink) Deliver(ctx context.Context, ev stream.Event) error {
	_, err := s.Processor.Apply(ctx, ev.Records)
	return err
}

// Relay tails a change feed and hands batches to a Sink. Delivery is at
// least once: the checkpoint only moves past records the sink accepted,
// so a crash or sink error replays them. The master's sequence guard makes
// replays harmless.
type Relay struct {
	source      FeedSource
	checkpoints Checkpoints
	sink        Sink
	name        string
	batchSize   int
	interval    time.Duration
	logger      *slog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithName sets the checkpoint name. Relays with different names track
// positions independently.
func WithName(name string) RelayOption {
	return func(r *Relay) {
		if name != "" {
			r.name = name
		}
	}
}

// WithBatchSize caps records per delivery.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPollInterval sets how often Run polls an idle feed.
func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRelayLogger sets the logger Run reports progress to.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRelay creates a relay from source to sink.
func NewRelay(source FeedSource, checkpoints Checkpoints, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		source:      source,
		checkpoints: checkpoints,
		sink:        sink,
		name:        DefaultRelayName,
		batchSize:   DefaultBatchSize,
		interval:    DefaultPollInterval,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce delivers at most one batch and returns how many records the
// checkpoint advanced past.
//
// On a *PartialFailure the checkpoint advances up to the first failed
// record, and the error is returned.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	after, err := r.checkpoints.LoadCheckpoint(ctx, r.name)
	if err != nil {
		return 0, fmt.Errorf("relay %s: %w", r.name, err)
	}

	records, err := r.source.ReadFeed(ctx, after, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("relay %s: %w", r.name, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	delivered := len(records)
	deliverErr := r.sink.Deliver(ctx, stream.Event{Records: records})
	if deliverErr != nil {
		var pf *PartialFailure
		if !errors.As(deliverErr, &pf) {
			return 0, fmt.Errorf("relay %s: deliver: %w", r.name, deliverErr)
		}
		delivered = pf.Failures[0].Index
	}

	if delivered > 0 {
		seq, err := feedPosition(records[delivered-1])
		if err != nil {
			return 0, fmt.Errorf("relay %s: %w", r.name, err)
		}
		if err := r.checkpoints.SaveCheckpoint(ctx, r.name, seq); err != nil {
			return 0, fmt.Errorf("relay %s: %w", r.name, err)
		}
	}

	if deliverErr != nil {
		return delivered, fmt.Errorf("relay %s: deliver: %w", r.name, deliverErr)
	}
	return delivered, nil
}

// Drain calls RunOnce until the feed is exhausted or a delivery fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RunOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// Run drains the feed every poll interval until ctx is cancelled.
// Errors are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay starting", "name", r.name, "batch_size", r.batchSize, "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.Drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("relay delivery failed", "name", r.name, "delivered", n, "error", err)
		} else if n > 0 {
			r.logger.Debug("relay delivered", "name", r.name, "records", n)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping: context cancelled", "name", r.name)
			return nil
		case <-ticker.C:
		}
	}
}

func feedPosition(rec stream.Record) (int64, error) {
	seq, err := strconv.ParseInt(rec.Change.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("feed record %s: invalid sequence number %q", rec.EventID, rec.Change.SequenceNumber)
	}
	return seq, nil
}
