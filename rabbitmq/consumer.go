package rabbitmq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/retry"
)

// AMQPChannel is the subset of *amqp.Channel used by Consumer
type AMQPChannel interface {
	AMQPPublisher
	Consume(
		queue string,
		consumer string,
		autoAck bool,
		exclusive bool,
		noLocal bool,
		noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
}

// Consumer dispatches deliveries of one queue to a handler through the coordinator.
// Deliveries are processed sequentially.
type Consumer struct {
	coordinator *retry.Coordinator
	handler     retry.Handler
	consumerTag string
	log         retry.Logger
}

// ConsumerOption configures Consumer
type ConsumerOption func(*Consumer)

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.consumerTag = tag
	}
}

// WithLogger sets the logger, the coordinator logger is used by default
func WithLogger(log retry.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.log = log
	}
}

// NewConsumer initializes Consumer
func NewConsumer(coordinator *retry.Coordinator, handler retry.Handler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		coordinator: coordinator,
		handler:     handler,
		log:         coordinator.Options().Logger,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Subscribe starts consuming queue with manual acknowledgements and serves
// deliveries until ctx is done or the delivery channel is closed
func (c *Consumer) Subscribe(ctx context.Context, ch AMQPChannel, queue string) error {
	deliveries, err := ch.Consume(queue, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("rabbitmq: subscribed to queue", "queue", queue)
	return c.Serve(ctx, ch, deliveries, retry.IncomingOptions{Ack: true, Queue: queue})
}

// Serve processes deliveries until ctx is done or deliveries is closed
func (c *Consumer) Serve(
	ctx context.Context,
	pub AMQPPublisher,
	deliveries <-chan amqp.Delivery,
	opts retry.IncomingOptions,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				c.log.Warn("rabbitmq: delivery channel closed", "queue", opts.Queue)
				return nil
			}
			c.handle(ctx, pub, d, opts)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, pub AMQPPublisher, d amqp.Delivery, opts retry.IncomingOptions) {
	msg := NewMessage(d)
	ch := NewChannel(d, pub)

	e, err := c.coordinator.Resolve(ctx, ch, msg, opts)
	if err != nil {
		// messages without a correlation id are dropped, the rest is redelivered
		requeue := !errors.Is(err, retry.ErrMissingCorrelationID)
		if rErr := ch.Reject(msg, requeue); rErr != nil {
			c.log.Error("rabbitmq: cannot reject message", "error", rErr.Error(), "deliveryTag", d.DeliveryTag)
		}
		return
	}
	if e.AlreadyAcked() {
		return
	}
	if err = c.handler(ctx, e); err != nil {
		c.log.Error(
			"rabbitmq: handler failed",
			"error", err.Error(),
			"correlationId", msg.CorrelationID,
			"queue", e.Queue(),
		)
	}
}
