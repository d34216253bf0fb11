package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/retry"
)

// NewMessage converts a delivery into a flag based retry.Message.
//
// The correlation id is taken from the CorrelationId property, then from the
// Correlation-Id header and finally from the MessageId property.
func NewMessage(d amqp.Delivery) *retry.Message {
	msg := retry.NewMessage()
	msg.Header = fromTable(d.Headers)
	msg.Body = d.Body
	msg.RoutingKey = d.RoutingKey
	msg.Delivery = retry.FlagDelivery{Redelivered: d.Redelivered}

	switch {
	case d.CorrelationId != "":
		msg.CorrelationID = d.CorrelationId
	case msg.Header.GetCorrelationID() != "":
		msg.CorrelationID = msg.Header.GetCorrelationID()
	default:
		msg.CorrelationID = d.MessageId
	}
	return msg
}

func fromTable(t amqp.Table) retry.Header {
	h := make(retry.Header, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case string:
			h[k] = val
		case []byte:
			h[k] = string(val)
		case nil:
			h[k] = ""
		default:
			h[k] = fmt.Sprint(val)
		}
	}
	return h
}

func toTable(h retry.Header) amqp.Table {
	t := make(amqp.Table, len(h))
	for k, v := range h {
		t[k] = v
	}
	return t
}
