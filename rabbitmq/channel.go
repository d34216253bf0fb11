// Package rabbitmq adapts RabbitMQ deliveries to the retry coordinator.
package rabbitmq

import (
	"context"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/retry"
)

// AMQPPublisher is the publishing capability of *amqp.Channel
type AMQPPublisher interface {
	PublishWithContext(
		ctx context.Context,
		exchange string,
		key string,
		mandatory bool,
		immediate bool,
		msg amqp.Publishing,
	) error
}

// channel acts upon a single delivery
type channel struct {
	delivery amqp.Delivery
	pub      AMQPPublisher
}

// NewChannel creates a retry.Channel acknowledging the given delivery and
// publishing dead-lettered copies through pub
func NewChannel(delivery amqp.Delivery, pub AMQPPublisher) retry.Channel {
	return &channel{delivery: delivery, pub: pub}
}

func (c *channel) Ack(*retry.Message) error {
	return c.delivery.Ack(false)
}

func (c *channel) Reject(_ *retry.Message, requeue bool) error {
	return c.delivery.Reject(requeue)
}

// SendToQueue publishes to the default exchange, which routes by queue name
func (c *channel) SendToQueue(ctx context.Context, queue string, body []byte, header retry.Header) error {
	p := amqp.Publishing{
		Headers:       toTable(header),
		ContentType:   c.delivery.ContentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: c.delivery.CorrelationId,
		MessageId:     c.delivery.MessageId,
		Body:          body,
	}
	if err := c.pub.PublishWithContext(ctx, "", queue, false, false, p); err != nil {
		return errors.Wrapf(err, "rabbitmq: cannot publish to %q", queue)
	}
	return nil
}
