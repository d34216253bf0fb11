package rabbitmq

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/retry"
)

// Publisher sends messages to queues through the default exchange.
// Every message is correlated before it is sent so that consumers are able to track its retries.
type Publisher struct {
	pub         AMQPPublisher
	contentType string
}

var _ retry.Publisher = (*Publisher)(nil)

// PublisherOption configures Publisher
type PublisherOption func(*Publisher)

// WithContentType sets the content type of published messages
func WithContentType(contentType string) PublisherOption {
	return func(p *Publisher) {
		p.contentType = contentType
	}
}

// NewPublisher initializes Publisher
func NewPublisher(pub AMQPPublisher, options ...PublisherOption) *Publisher {
	p := &Publisher{pub: pub, contentType: "application/json"}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, queue string, message *retry.Message) error {
	retry.Correlate(message)
	msg := amqp.Publishing{
		Headers:       toTable(message.Header),
		ContentType:   p.contentType,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: message.CorrelationID,
		MessageId:     uuid.NewString(),
		Body:          message.Body,
	}
	if err := p.pub.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return errors.Wrapf(err, "rabbitmq: cannot publish to %q", queue)
	}
	return nil
}
