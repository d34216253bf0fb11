package retry

import (
	"context"

	"github.com/pkg/errors"
)

const deadLetterSuffix = ".error"

// DeadLetterQueue derives the dead-letter destination of queue
func DeadLetterQueue(queue string) string {
	return queue + deadLetterSuffix
}

// DeadLetterRouter moves messages which exhausted their retry budget to the
// dead-letter destination
type DeadLetterRouter struct {
	store Store
	log   Logger
}

// NewDeadLetterRouter initializes DeadLetterRouter
func NewDeadLetterRouter(store Store, log Logger) *DeadLetterRouter {
	return &DeadLetterRouter{store: store, log: log}
}

// Route dispatches a copy of msg to the dead-letter destination of queue with the
// rejection count in its header, rejects msg without requeueing and clears key.
//
// The retry count is only cleared once both the dispatch and the rejection have
// been issued. When the dispatch fails the message is requeued so that the
// broker redelivers it and the history is kept.
func (r *DeadLetterRouter) Route(
	ctx context.Context,
	ch Channel,
	msg *Message,
	queue string,
	key string,
	count int64,
) error {
	if queue == "" {
		return ErrNoQueue
	}
	dlq := DeadLetterQueue(queue)

	header := msg.Header.Clone()
	header.SetRejected(count)
	body := append([]byte(nil), msg.Body...)

	r.log.Warn(
		"retry: sending message to the dead-letter queue",
		"correlationId", msg.CorrelationID,
		"queue", dlq,
		"rejected", count,
	)

	if err := ch.SendToQueue(ctx, dlq, body, header); err != nil {
		err = errors.Wrapf(err, "retry: cannot send message to %q", dlq)
		if rErr := ch.Reject(msg, true); rErr != nil {
			r.log.Error("retry: cannot requeue message", "correlationId", msg.CorrelationID, "error", rErr.Error())
		}
		return err
	}
	if err := ch.Reject(msg, false); err != nil {
		return errors.Wrap(err, "retry: cannot reject dead-lettered message")
	}

	if msg.isOffsetBased() {
		// a replayed batch must not bring the message back
		if err := r.store.Ack(ctx, key); err != nil {
			return &StoreError{Op: "ack", Key: key, Err: err}
		}
	}
	if err := r.store.Clear(ctx, key); err != nil {
		return &StoreError{Op: "clear", Key: key, Err: err}
	}
	return nil
}
