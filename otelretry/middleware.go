package otelretry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/retry"
)

// PublisherMiddleware wraps a retry.Publisher with a producer span and injects
// the trace context into the message header.
func PublisherMiddleware(option ...Option) func(next retry.Publisher) retry.Publisher {
	opts := defaultOptions()
	opts.spanNameFormatter = spanNameFormatter("publish")
	opts.apply(option)
	return func(next retry.Publisher) retry.Publisher {
		return retry.PublisherFunc(func(ctx context.Context, queue string, msg *retry.Message) error {
			tracer := opts.tracerFor(ctx)

			kind := trace.WithSpanKind(trace.SpanKindProducer)
			attrs := append(commonAttributes(queue, msg), semconv.MessagingOperationPublish)
			sopts := append(
				[]trace.SpanStartOption{kind, trace.WithAttributes(attrs...)},
				opts.spanStartOptions...,
			)

			ctx, span := tracer.Start(ctx, opts.spanNameFormatter(queue, msg), sopts...)
			defer span.End()

			if msg.Header == nil {
				msg.Header = make(retry.Header)
			}
			opts.propagator.Inject(ctx, propagation.MapCarrier(msg.Header))
			err := next.Publish(ctx, queue, msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return err
		})
	}
}

// ConsumerMiddleware creates a middleware for retry.Handler that starts a consumer
// span per event. The span carries the retry state of the event.
func ConsumerMiddleware(option ...Option) retry.Middleware {
	opts := defaultOptions()
	opts.spanNameFormatter = spanNameFormatter("receive")
	opts.apply(option)
	return func(next retry.Handler) retry.Handler {
		return func(ctx context.Context, event retry.Event) error {
			msg := event.Message()
			queue := event.Queue()

			tracer := opts.tracerFor(ctx)
			if msg.Header != nil {
				ctx = opts.propagator.Extract(ctx, propagation.MapCarrier(msg.Header))
			}

			kind := trace.WithSpanKind(trace.SpanKindConsumer)
			attrs := append(commonAttributes(queue, msg), semconv.MessagingOperationReceive)
			if remaining, ok := event.RetriesRemaining(); ok {
				attrs = append(attrs, RetriesRemainingKey.Int(remaining))
			}
			if event.AlreadyAcked() {
				attrs = append(attrs, AlreadyAckedKey.Bool(true))
			}
			sopts := append(
				[]trace.SpanStartOption{kind, trace.WithAttributes(attrs...)},
				opts.spanStartOptions...,
			)

			ctx, span := tracer.Start(ctx, opts.spanNameFormatter(queue, msg), sopts...)
			defer span.End()

			err := next(ctx, event)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return err
		}
	}
}

// Option is a functional option type for configuring propagation
type Option func(opts *options)

// WithPropagator returns an Option that sets a custom propagator
// for text map propagation of trace context.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(opts *options) {
		opts.propagator = p
	}
}

// WithTracer returns an Option that sets a custom tracer
// for the trace context.
func WithTracer(t trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = t
	}
}

// WithSpanStartOptions returns an Option that sets custom
// SpanStartOptions for starting new spans.
func WithSpanStartOptions(startOpts ...trace.SpanStartOption) Option {
	return func(opts *options) {
		opts.spanStartOptions = startOpts
	}
}

// WithSpanNameFormatter returns an Option that sets a custom
// function for formatting span names.
func WithSpanNameFormatter(formatter func(queue string, msg *retry.Message) string) Option {
	return func(opts *options) {
		opts.spanNameFormatter = formatter
	}
}

// WithAttributes adds attributes to every started span
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(opts *options) {
		opts.spanStartOptions = append(opts.spanStartOptions, trace.WithAttributes(attrs...))
	}
}

type options struct {
	propagator        propagation.TextMapPropagator
	tracer            trace.Tracer
	spanStartOptions  []trace.SpanStartOption
	spanNameFormatter func(queue string, msg *retry.Message) string
}

func (o *options) apply(opts []Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// tracerFor prefers the configured tracer, then the provider of the span found in ctx
func (o *options) tracerFor(ctx context.Context) trace.Tracer {
	if o.tracer != nil {
		return o.tracer
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return newTracer(span.TracerProvider())
	}
	return newTracer(otel.GetTracerProvider())
}

// defaultOptions creates and returns an options instance with default settings.
// It sets the OpenTelemetry TextMapPropagator as the default propagator.
func defaultOptions() *options {
	return &options{
		propagator: otel.GetTextMapPropagator(),
	}
}

func spanNameFormatter(operation string) func(queue string, msg *retry.Message) string {
	return func(queue string, _ *retry.Message) string {
		return queue + " " + operation
	}
}
