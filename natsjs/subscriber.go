package natsjs

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/velmie/retry"
)

// Subscriber consumes JetStream subjects with manual acknowledgement and
// passes every message through the coordinator
type Subscriber struct {
	jetStream   nats.JetStreamContext
	coordinator *retry.Coordinator
	options     *subscriberOptions
}

type subscriberOptions struct {
	subOpts []nats.SubOpt
	logger  retry.Logger
}

type SubscriberOption func(options *subscriberOptions)

// SubOptions appends nats.SubOpt(s) to every subscription
func SubOptions(opts ...nats.SubOpt) SubscriberOption {
	return func(options *subscriberOptions) {
		options.subOpts = append(options.subOpts, opts...)
	}
}

// SubscriberLogger sets the logger, the coordinator logger is used by default
func SubscriberLogger(logger retry.Logger) SubscriberOption {
	return func(options *subscriberOptions) {
		options.logger = logger
	}
}

func NewSubscriber(js nats.JetStreamContext, coordinator *retry.Coordinator, options ...SubscriberOption) *Subscriber {
	opts := &subscriberOptions{logger: coordinator.Options().Logger}
	for _, o := range options {
		o(opts)
	}
	return &Subscriber{jetStream: js, coordinator: coordinator, options: opts}
}

// Subscribe creates a durable push consumer on subject. Messages are handled
// sequentially with ctx until the returned subscription is drained or unsubscribed.
// The dead-letter destination of a message is derived from the subject it was received on.
func (s *Subscriber) Subscribe(
	ctx context.Context,
	subject string,
	durable string,
	handler retry.Handler,
) (*nats.Subscription, error) {
	if durable == "" {
		return nil, ErrDurableName
	}
	opts := append([]nats.SubOpt{
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
	}, s.options.subOpts...)

	sub, err := s.jetStream.Subscribe(subject, s.callback(ctx, handler), opts...)
	if err != nil {
		return nil, err
	}
	s.options.logger.Info("NATS JetStream: subscribed", "subject", subject, "durable", durable)
	return sub, nil
}

func (s *Subscriber) callback(ctx context.Context, handler retry.Handler) nats.MsgHandler {
	log := s.options.logger
	return func(natsMsg *nats.Msg) {
		msg := NewMessage(natsMsg)
		ch := NewChannel(natsMsg, s.jetStream)

		e, err := s.coordinator.Resolve(ctx, ch, msg, retry.IncomingOptions{Ack: true})
		if err != nil {
			// messages without a correlation id are dropped, the rest is redelivered
			requeue := !errors.Is(err, retry.ErrMissingCorrelationID)
			if rErr := ch.Reject(msg, requeue); rErr != nil {
				log.Error("NATS JetStream: cannot reject message", "error", rErr.Error(), "subject", natsMsg.Subject)
			}
			return
		}
		if e.AlreadyAcked() {
			return
		}
		if err = handler(ctx, e); err != nil {
			log.Error(
				"NATS JetStream: cannot handle received message",
				"error", err.Error(),
				"correlationId", msg.CorrelationID,
				"subject", natsMsg.Subject,
			)
		}
	}
}
