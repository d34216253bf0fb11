// Package natsjs adapts NATS JetStream messages to the retry coordinator.
//
// JetStream exposes an explicit delivery counter, so messages are flag based:
// a message is redelivered when it was delivered more than once.
// Reject with requeue naks the message, reject without requeue terminates it.
package natsjs

import (
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/velmie/retry"
)

func copyMessageHeader(h retry.Header) nats.Header {
	header := make(nats.Header, len(h))
	for k, v := range h {
		header.Set(k, v)
	}
	return header
}

func buildMessageHeader(header nats.Header) retry.Header {
	res := make(retry.Header, len(header))
	for k, v := range header {
		if len(v) > 0 {
			res[k] = v[0]
		}
	}
	return res
}

// EnsureStream creates the stream or adds missing subjects to an existing one.
// Dead-letter subjects are derived by suffixing the consumed subject with ".error".
// Pass both explicitly, e.g. "ORDERS.created" and "ORDERS.created.error", and
// subscribe to the consumed subject only. A consumer on a wildcard such as
// "ORDERS.>" also receives the dead letters, which then cascade to "*.error.error".
func EnsureStream(js nats.JetStreamManager, stream string, subjects ...string) error {
	if stream == "" {
		return ErrStreamName
	}
	stream = strings.ToUpper(stream)

	si, err := js.StreamInfo(stream)
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, err = js.AddStream(&nats.StreamConfig{
				Name:     stream,
				Subjects: subjects,
			})
		}
		return errors.Wrapf(err, "NATS JetStream: cannot ensure stream %q", stream)
	}

	missing := false
	for _, subject := range subjects {
		if !contains(si.Config.Subjects, subject) {
			si.Config.Subjects = append(si.Config.Subjects, subject)
			missing = true
		}
	}
	if !missing {
		return nil
	}
	_, err = js.UpdateStream(&si.Config)
	return errors.Wrapf(err, "NATS JetStream: cannot update stream %q", stream)
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
