package retry

import "context"

//go:generate go run go.uber.org/mock/mockgen@v0.4.0 -source common.go -destination ./mock/common.go

// Handler processes an event resolved by the Coordinator.
// When the event is tracked, the handler is expected to call exactly one of
// Handle().Ack or Handle().Reject.
type Handler func(ctx context.Context, e Event) error

// Middleware defines a function type that takes a Handler and returns a modified Handler.
// It is used to intercept and optionally modify the behavior of the Handler function:
// logging, tracing, panic recovery and so on.
//
// Example:
//
//	func MyMiddleware(next Handler) Handler {
//	    return func(ctx context.Context, e Event) error {
//	        // Pre-processing logic here
//	        err := next(ctx, e)
//	        // Post-processing logic here
//	        return err
//	    }
//	}
type Middleware func(Handler) Handler

// Chain wraps h with the given middleware. The first middleware is the outermost one.
func Chain(h Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Delivery describes how a transport signals redelivery of a message.
// It is either FlagDelivery or OffsetDelivery.
type Delivery interface {
	delivery()
}

// FlagDelivery is used by transports exposing an explicit redelivered indicator
// and a native acknowledgement (AMQP, NATS JetStream).
type FlagDelivery struct {
	Redelivered bool
}

// OffsetDelivery is used by offset/batch based transports. Redelivery is implicit
// in replaying a committed batch, so an "already acked" marker is kept in the Store.
// The marker is only consulted when Options.SetRetriesRemaining is enabled.
type OffsetDelivery struct {
	Offset uint64
}

func (FlagDelivery) delivery()   {}
func (OffsetDelivery) delivery() {}

// Message is an inbound message as seen by the coordinator
type Message struct {
	// CorrelationID must be stable across redeliveries of the same logical message
	CorrelationID string
	// Header includes additional service data
	Header Header
	// Body is message payload
	Body []byte
	// RoutingKey is the queue or topic the message was received from
	RoutingKey string
	// Delivery selects the redelivery detection strategy, nil means a first flag-based delivery
	Delivery Delivery
}

// NewMessage initializes message
func NewMessage() *Message {
	return &Message{
		Header: make(Header),
	}
}

// isOffsetBased reports whether the message came from an offset/batch transport
func (m *Message) isOffsetBased() bool {
	_, ok := m.Delivery.(OffsetDelivery)
	return ok
}

// isRedelivered reports whether a flag-based transport marked the message as redelivered
func (m *Message) isRedelivered() bool {
	d, ok := m.Delivery.(FlagDelivery)
	return ok && d.Redelivered
}

// Channel is the broker capability the coordinator acts upon
type Channel interface {
	// Ack acknowledges the message natively
	Ack(msg *Message) error
	// Reject rejects the message, the broker redelivers it when requeue is true
	Reject(msg *Message, requeue bool) error
	// SendToQueue dispatches a payload to the named destination
	SendToQueue(ctx context.Context, queue string, body []byte, header Header) error
}

// Event is given to a Handler for processing
type Event interface {
	// Queue returns the queue the message was consumed from
	Queue() string
	Message() *Message
	// Handle returns nil when the listener was not configured with Ack
	Handle() *Handle
	// RetriesRemaining returns the remaining retry budget and whether it was resolved
	RetriesRemaining() (int, bool)
	// AlreadyAcked is true when an offset-based transport replayed a message
	// that has been fully handled before
	AlreadyAcked() bool
}

// ErrorHandler is used in order to report errors
type ErrorHandler func(err error, msg *Message)

// Logger abstracts the logging functionality
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type event struct {
	queue            string
	message          *Message
	handle           *Handle
	retriesRemaining int
	hasRetries       bool
	acked            bool
}

func (e *event) Queue() string {
	return e.queue
}

func (e *event) Message() *Message {
	return e.message
}

func (e *event) Handle() *Handle {
	return e.handle
}

func (e *event) RetriesRemaining() (int, bool) {
	return e.retriesRemaining, e.hasRetries
}

func (e *event) AlreadyAcked() bool {
	return e.acked
}
