package amqpfeed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/stream"
)

// Consumer applies feed batches delivered on a queue. Deliveries are
// acked only when every record applied; otherwise they are nacked with
// requeue, and the master's sequence guard absorbs the replay. A batch
// that keeps failing is dead-lettered once it has been redelivered the
// configured number of times.
type Consumer struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	queue        string
	processor    *replication.Processor
	logger       *slog.Logger
	redeliveries int
}

// NewConsumer connects to url and declares queue and its dead-letter queue.
func NewConsumer(ctx context.Context, url, queue string, p *replication.Processor, opts ...Option) (*Consumer, error) {
	o := buildOptions(opts)
	if queue == "" {
		queue = DefaultQueue
	}
	conn, ch, err := connect(ctx, url, queue, o)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		conn:         conn,
		channel:      ch,
		queue:        queue,
		processor:    p,
		logger:       o.logger,
		redeliveries: o.redeliveries,
	}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.channel.ConsumeWithContext(ctx,
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.Info("consumer waiting for feed batches", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping: context cancelled")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle applies one delivery and settles it. A body that does not
// decode can never succeed, so it is rejected without requeue.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	ev, err := stream.Decode(bytes.NewReader(d.Body))
	if err != nil {
		c.logger.Error("dropping undecodable feed batch", "message_id", d.MessageId, "error", err)
		if rejectErr := d.Reject(false); rejectErr != nil {
			c.logger.Error("reject failed", "message_id", d.MessageId, "error", rejectErr)
		}
		return
	}

	res, err := c.processor.Apply(ctx, ev.Records)
	if err != nil {
		count := deliveryCount(d)
		if count >= int64(c.redeliveries) {
			c.logger.Error("dead-lettering feed batch",
				"message_id", d.MessageId,
				"redeliveries", count,
				"error", err,
			)
			if rejectErr := d.Reject(false); rejectErr != nil {
				c.logger.Error("reject failed", "message_id", d.MessageId, "error", rejectErr)
			}
			return
		}

		c.logger.Error("failed to apply feed batch", "message_id", d.MessageId, "redeliveries", count, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", "message_id", d.MessageId, "error", nackErr)
		}
		return
	}

	c.logger.Debug("applied feed batch",
		"message_id", d.MessageId,
		"applied", res.Applied,
		"stale", res.Stale,
		"ignored", res.Ignored,
	)
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("ack failed", "message_id", d.MessageId, "error", ackErr)
	}
}

// deliveryCount is how often d was returned to the queue before, as
// counted by a quorum queue in the x-delivery-count header.
func deliveryCount(d amqp.Delivery) int64 {
	switch n := d.Headers["x-delivery-count"].(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
