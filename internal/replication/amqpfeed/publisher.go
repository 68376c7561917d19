// Package amqpfeed carries change feed batches over RabbitMQ. Publisher is
// a relay Sink; Consumer applies delivered batches with a Processor.
package amqpfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roach88/pos/internal/stream"
)

// DefaultQueue is the queue feed batches are published to.
const DefaultQueue = "pos.order_changes"

// DefaultRedeliveries is how often a failing batch is redelivered before
// it is dead-lettered.
const DefaultRedeliveries = 5

// ErrNacked is returned when the broker refuses a published batch.
var ErrNacked = errors.New("broker nacked batch")

// confirmation is a pending publisher confirm.
// Implemented by *amqp.DeferredConfirmation.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// publishChannel publishes one message to a queue and returns its confirm.
type publishChannel interface {
	publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error)
}

// confirmChannel is a channel in confirm mode.
type confirmChannel struct {
	ch *amqp.Channel
}

func (c confirmChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

// Option configures a Publisher or Consumer.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	redeliveries int
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		redeliveries: DefaultRedeliveries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRedeliveries sets how often a failing batch is redelivered before
// it is dead-lettered. Zero dead-letters on the first failure.
func WithRedeliveries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.redeliveries = n
		}
	}
}

// Publisher publishes each batch as one persistent JSON message and waits
// for the broker to confirm it.
type Publisher struct {
	conn    *amqp.Connection
	channel publishChannel
	closer  io.Closer
	queue   string
	logger  *slog.Logger
}

// Dial connects to url, declares the durable queue and returns a
// publisher. The broker may still be starting, so dialing is retried.
func Dial(ctx context.Context, url, queue string, opts ...Option) (*Publisher, error) {
	o := buildOptions(opts)
	if queue == "" {
		queue = DefaultQueue
	}
	conn, ch, err := connect(ctx, url, queue, o)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{
		conn:    conn,
		channel: confirmChannel{ch: ch},
		closer:  ch,
		queue:   queue,
		logger:  o.logger,
	}, nil
}

// Deliver implements replication.Sink. It returns only after the broker
// has taken responsibility for the batch; a nack is an error, so the
// relay keeps its checkpoint and redelivers.
func (p *Publisher) Deliver(ctx context.Context, ev stream.Event) error {
	if len(ev.Records) == 0 {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	id := ev.Records[0].EventID
	conf, err := p.channel.publish(ctx, p.queue, amqp.Publishing{
		MessageId:    id,
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", id, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm batch %s: %w", id, err)
	}
	if !acked {
		return fmt.Errorf("publish batch %s: %w", id, ErrNacked)
	}

	p.logger.Debug("published feed batch", "queue", p.queue, "message_id", id, "records", len(ev.Records))
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.closer != nil {
		p.closer.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

const (
	dialAttempts = 10
	dialBackoff  = 2 * time.Second
)

// deadLetterQueue names the queue that receives batches given up on.
func deadLetterQueue(queue string) string {
	return queue + ".dead"
}

// queueArgs declares queue as a quorum queue so the broker counts
// deliveries, and routes batches over the limit to the dead-letter queue.
func queueArgs(queue string, redeliveries int) amqp.Table {
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int64(redeliveries),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": deadLetterQueue(queue),
	}
}

func connect(ctx context.Context, url, queue string, o options) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		o.logger.Warn("failed to connect to RabbitMQ, retrying", "attempt", i+1, "of", dialAttempts, "error", err)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	declare := func(name string, args amqp.Table) error {
		_, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			args,  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		return nil
	}
	err = declare(deadLetterQueue(queue), nil)
	if err == nil {
		err = declare(queue, queueArgs(queue, o.redeliveries))
	}
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	return conn, ch, nil
}
