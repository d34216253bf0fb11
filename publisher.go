package retry

import "context"

// Publisher allows publishing to a specific queue
type Publisher interface {
	Publish(ctx context.Context, queue string, message *Message) error
}

// PublisherFunc wraps a function to use it as a Publisher
type PublisherFunc func(ctx context.Context, queue string, message *Message) error

func (f PublisherFunc) Publish(ctx context.Context, queue string, message *Message) error {
	return f(ctx, queue, message)
}

// CorrelatingPublisher stamps every published message with a correlation id
// unless it already carries one, so consumers are able to track its retries.
func CorrelatingPublisher(next Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, queue string, message *Message) error {
		Correlate(message)
		return next.Publish(ctx, queue, message)
	})
}
