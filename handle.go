package retry

import (
	"context"

	"github.com/pkg/errors"
)

// Handle exposes the terminal actions of a tracked message to the handler.
// Ack may be called once, Reject at most MaxRetries+1 times; exceeding either
// bound panics with *GuardViolation.
type Handle struct {
	c     *Coordinator
	ch    Channel
	msg   *Message
	key   string
	queue string
	guard *guard
}

// Key returns the store key the message is tracked under
func (h *Handle) Key() string {
	return h.key
}

// Acked reports whether Ack has been called on the handle
func (h *Handle) Acked() bool {
	return h.guard.calls[actionAck] > 0
}

// Rejected reports whether Reject has been called on the handle
func (h *Handle) Rejected() bool {
	return h.guard.calls[actionReject] > 0
}

// Ack acknowledges the message and clears its retry count.
//
// Flag-based deliveries are acknowledged natively. For offset-based deliveries
// the broker commits offsets on its own, so the ack flag is recorded in the
// store instead.
func (h *Handle) Ack(ctx context.Context) error {
	h.guard.check(actionAck, 1)

	log := h.c.opts.Logger
	log.Debug("retry: acking message", "correlationId", h.msg.CorrelationID)

	store := h.c.opts.Store
	if !h.msg.isOffsetBased() {
		if err := h.ch.Ack(h.msg); err != nil {
			return h.fail(errors.Wrap(err, "retry: cannot ack message"))
		}
	} else if err := store.Ack(ctx, h.key); err != nil {
		return h.fail(&StoreError{Op: "ack", Key: h.key, Err: err})
	}

	if err := store.Clear(ctx, h.key); err != nil {
		return h.fail(&StoreError{Op: "clear", Key: h.key, Err: err})
	}
	return nil
}

// Acknowledge is an alias of Ack
func (h *Handle) Acknowledge(ctx context.Context) error {
	return h.Ack(ctx)
}

// Reject counts a failed processing attempt. While the retry budget lasts the
// message is requeued, afterwards it is moved to the dead-letter queue.
func (h *Handle) Reject(ctx context.Context) error {
	h.guard.check(actionReject, h.c.opts.MaxRetries+1)

	count, err := h.c.opts.Store.Increment(ctx, h.key)
	if err != nil {
		return h.fail(&StoreError{Op: "increment", Key: h.key, Err: err})
	}

	log := h.c.opts.Logger
	if count > int64(h.c.opts.MaxRetries) {
		if err = h.c.router.Route(ctx, h.ch, h.msg, h.queue, h.key, count); err != nil {
			return h.fail(err)
		}
		return nil
	}

	log.Debug("retry: retrying message", "correlationId", h.msg.CorrelationID, "attempt", count)
	if err = h.ch.Reject(h.msg, true); err != nil {
		return h.fail(errors.Wrap(err, "retry: cannot requeue message"))
	}
	return nil
}

func (h *Handle) fail(err error) error {
	h.c.opts.ErrorHandler(err, h.msg)
	return err
}

// called reports whether a terminal action has been invoked on the handle
func (h *Handle) called() bool {
	return h.Acked() || h.Rejected()
}
