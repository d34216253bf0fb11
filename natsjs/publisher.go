package natsjs

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/velmie/retry"
)

// Publisher publishes correlated messages to JetStream subjects
type Publisher struct {
	jetStream nats.JetStreamContext
}

var _ retry.Publisher = (*Publisher)(nil)

func NewPublisher(js nats.JetStreamContext) *Publisher {
	return &Publisher{jetStream: js}
}

func (p *Publisher) Publish(ctx context.Context, subject string, message *retry.Message) error {
	retry.Correlate(message)

	msg := nats.NewMsg(subject)
	msg.Header = copyMessageHeader(message.Header)
	msg.Data = message.Body

	if _, err := p.jetStream.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return errors.Wrap(err, "NATS JetStream: cannot send message")
	}
	return nil
}
