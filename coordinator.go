package retry

import "context"

// Coordinator resolves redelivery and retry state of inbound messages and hands
// them to application handlers together with a Handle to ack or reject them.
//
// Every Coordinator owns its configuration, coordinators sharing a Store should
// use distinct namespaces unless they are meant to share retry history.
type Coordinator struct {
	opts   Options
	router *DeadLetterRouter
}

// New initializes Coordinator
func New(options ...Option) *Coordinator {
	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}
	opts.applyDefaults()
	return &Coordinator{
		opts:   *opts,
		router: NewDeadLetterRouter(opts.Store, opts.Logger),
	}
}

// Options returns a copy of the coordinator options
func (c *Coordinator) Options() Options {
	return c.opts
}

// Resolve wraps msg into an Event. When tracking is enabled, the redelivery and
// retry state are resolved against the store and a Handle is attached.
//
// Store failures are reported to the ErrorHandler and returned as *StoreError.
func (c *Coordinator) Resolve(ctx context.Context, ch Channel, msg *Message, opts IncomingOptions) (Event, error) {
	queue := opts.Queue
	if queue == "" {
		queue = msg.RoutingKey
	}
	e := &event{queue: queue, message: msg}
	if !opts.Ack {
		return e, nil
	}
	if msg.CorrelationID == "" {
		c.opts.ErrorHandler(ErrMissingCorrelationID, msg)
		return nil, ErrMissingCorrelationID
	}

	key := c.opts.namespacedKey(msg.CorrelationID)
	log := c.opts.Logger
	log.Debug("retry: resolving message", "correlationId", msg.CorrelationID, "key", key)

	if err := c.resolveRetries(ctx, e, key); err != nil {
		c.opts.ErrorHandler(err, msg)
		return nil, err
	}
	if e.acked {
		return e, nil
	}

	e.handle = &Handle{
		c:     c,
		ch:    ch,
		msg:   msg,
		key:   key,
		queue: queue,
		guard: newGuard(msg.CorrelationID),
	}
	return e, nil
}

func (c *Coordinator) resolveRetries(ctx context.Context, e *event, key string) error {
	msg := e.message
	switch {
	case !c.opts.SetRetriesRemaining:
		return nil
	case msg.isOffsetBased():
		acked, err := c.opts.Store.HasBeenAcked(ctx, key)
		if err != nil {
			return &StoreError{Op: "hasBeenAcked", Key: key, Err: err}
		}
		if acked {
			e.acked = true
			return nil
		}
		return c.setRetriesRemaining(ctx, e, key)
	case msg.isRedelivered():
		return c.setRetriesRemaining(ctx, e, key)
	default:
		e.retriesRemaining, e.hasRetries = c.opts.MaxRetries, true
		return nil
	}
}

func (c *Coordinator) setRetriesRemaining(ctx context.Context, e *event, key string) error {
	count, _, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		return &StoreError{Op: "get", Key: key, Err: err}
	}
	remaining := int64(c.opts.MaxRetries) - count
	if remaining < 0 {
		remaining = 0
	}
	e.retriesRemaining, e.hasRetries = int(remaining), true
	return nil
}

// HandleIncoming resolves msg and invokes next with the resulting Event.
// Messages which were already handled in an earlier batch never reach next.
// Errors returned by next are returned as is.
func (c *Coordinator) HandleIncoming(
	ctx context.Context,
	ch Channel,
	msg *Message,
	opts IncomingOptions,
	next Handler,
) error {
	e, err := c.Resolve(ctx, ch, msg, opts)
	if err != nil {
		return err
	}
	if e.AlreadyAcked() {
		c.opts.Logger.Debug(
			"retry: message has been acked before, skipping",
			"correlationId", msg.CorrelationID,
		)
		return nil
	}
	return next(ctx, e)
}
