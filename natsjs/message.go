package natsjs

import (
	"github.com/nats-io/nats.go"

	"github.com/velmie/retry"
)

// NewMessage converts a JetStream message into a flag based retry.Message.
//
// The correlation id is read from the Correlation-Id header, falling back to
// the Nats-Msg-Id header. Messages without JetStream metadata are treated as
// first deliveries.
func NewMessage(msg *nats.Msg) *retry.Message {
	m := retry.NewMessage()
	m.Header = buildMessageHeader(msg.Header)
	m.Body = msg.Data
	m.RoutingKey = msg.Subject

	m.CorrelationID = m.Header.GetCorrelationID()
	if m.CorrelationID == "" {
		m.CorrelationID = msg.Header.Get(nats.MsgIdHdr)
	}

	redelivered := false
	if meta, err := msg.Metadata(); err == nil {
		redelivered = meta.NumDelivered > 1
	}
	m.Delivery = retry.FlagDelivery{Redelivered: redelivered}
	return m
}
