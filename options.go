package retry

import (
	"fmt"
	"log/slog"
)

const defaultMaxRetries = 3

// IncomingOptions are the listener options a message was consumed with
type IncomingOptions struct {
	// Ack enables tracking. When false messages are passed through untouched.
	Ack bool
	// Queue is used to derive the dead-letter destination, the message routing key is used when empty
	Queue string
}

// Options represents options which could be applied to a Coordinator
type Options struct {
	// MaxRetries is the number of reject cycles allowed before dead-lettering
	MaxRetries int
	// Namespace prefixes store keys, isolating coordinators which share one store
	Namespace string
	// SetRetriesRemaining enables resolving the remaining retry budget for every event.
	// It also gates the ack flag lookup of OffsetDelivery messages: when disabled, the
	// flag is still written on Ack but never read, and replayed batches reach the handler again.
	SetRetriesRemaining bool
	// Store keeps retry counts and ack flags, MemoryStore by default
	Store Store
	// ErrorHandler receives store and broker errors in addition to the caller
	ErrorHandler ErrorHandler
	// Logger logs important events
	Logger Logger
}

// DefaultOptions creates options with default values
func DefaultOptions() *Options {
	return &Options{
		MaxRetries: defaultMaxRetries,
	}
}

// Option provides a way to interact with the Coordinator options
type Option func(*Options)

// WithMaxRetries sets the reject budget
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithNamespace sets the store key prefix
func WithNamespace(ns string) Option {
	return func(o *Options) {
		o.Namespace = ns
	}
}

// WithSetRetriesRemaining toggles resolution of the remaining retry budget
func WithSetRetriesRemaining(enabled bool) Option {
	return func(o *Options) {
		o.SetRetriesRemaining = enabled
	}
}

// WithStore sets the store
func WithStore(store Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithErrorHandler sets the option which provides error handler
func WithErrorHandler(handler ErrorHandler) Option {
	return func(o *Options) {
		o.ErrorHandler = handler
	}
}

// WithLogger sets the logger
func WithLogger(log Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

func (o *Options) applyDefaults() {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = LogErrorHandler(o.Logger)
	}
}

// namespacedKey returns the store key for the given correlation id
func (o *Options) namespacedKey(correlationID string) string {
	if o.Namespace == "" {
		return correlationID
	}
	return fmt.Sprintf("%s-%s", o.Namespace, correlationID)
}
