package natsjs

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/velmie/retry"
)

type channel struct {
	msg *nats.Msg
	js  nats.JetStreamContext
}

// NewChannel creates a retry.Channel acting upon msg. Dead-lettered copies are
// published through js.
func NewChannel(msg *nats.Msg, js nats.JetStreamContext) retry.Channel {
	return &channel{msg: msg, js: js}
}

func (c *channel) Ack(*retry.Message) error {
	return c.msg.AckSync()
}

func (c *channel) Reject(_ *retry.Message, requeue bool) error {
	if requeue {
		return c.msg.Nak()
	}
	return c.msg.Term()
}

func (c *channel) SendToQueue(ctx context.Context, queue string, body []byte, header retry.Header) error {
	msg := nats.NewMsg(queue)
	msg.Header = copyMessageHeader(header)
	msg.Data = body

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return errors.Wrapf(err, "NATS JetStream: cannot send message to %q", queue)
	}
	return nil
}
