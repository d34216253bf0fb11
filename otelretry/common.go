package otelretry

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/velmie/retry"
)

// ScopeName is the instrumentation scope name.
const (
	ScopeName = "github.com/velmie/retry/otelretry"
	Version   = "0.1.0"
)

const (
	RetriesRemainingKey = attribute.Key("retry.retries_remaining")
	AlreadyAckedKey     = attribute.Key("retry.already_acked")
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(ScopeName, trace.WithInstrumentationVersion(Version))
}

func commonAttributes(queue string, msg *retry.Message) []attribute.KeyValue {
	attr := []attribute.KeyValue{
		semconv.MessagingDestinationName(queue),
		semconv.MessagingMessagePayloadSizeBytes(len(msg.Body)),
	}
	if msg.CorrelationID != "" {
		attr = append(attr, semconv.MessagingMessageConversationID(msg.CorrelationID))
	}
	return attr
}
