package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/velmie/idempo"

	"github.com/velmie/retry"
)

const (
	operationConsume = "consume"
	maxKeyLength     = 255

	// OutcomeMetadataKey is the record metadata entry telling how the message completed
	OutcomeMetadataKey = "retry-outcome"
	// OutcomeAcked is recorded when the handler acked the message
	OutcomeAcked = "acked"
	// OutcomeHandled is recorded when the handler succeeded without a terminal action
	OutcomeHandled = "handled"
)

// Middleware guards the wrapped handler with the idempotency engine.
//
// Duplicates of a completed message skip the handler. When they are tracked they
// are acked through their retry.Handle unless WithAckOnReplay(false) is given.
func Middleware(engine *idempo.Engine, opts ...Option) retry.Middleware {
	if engine == nil {
		panic("retry/idempotency: nil engine")
	}
	d := &deduplicator{engine: engine, opts: newOptions(opts)}

	return func(next retry.Handler) retry.Handler {
		return func(ctx context.Context, e retry.Event) error {
			return d.handle(ctx, next, e)
		}
	}
}

type deduplicator struct {
	engine *idempo.Engine
	opts   *options
}

func (d *deduplicator) handle(ctx context.Context, next retry.Handler, e retry.Event) error {
	key, err := d.key(e)
	if err != nil {
		return err
	}
	if key == "" {
		return next(ctx, e)
	}

	res, err := d.acquire(ctx, key, d.fingerprint(e))
	if err != nil {
		return err
	}
	switch {
	case res.Response != nil:
		return d.replay(ctx, e, res.Response)
	case !res.IsOwner:
		return idempo.ErrInProgress
	}
	return d.own(ctx, next, e, key, res.Token)
}

// key returns the record key of e, empty when e carries none
func (d *deduplicator) key(e retry.Event) (string, error) {
	var raw string
	if h := e.Handle(); h != nil {
		raw = h.Key()
	} else {
		msg := e.Message()
		raw = strings.TrimSpace(msg.CorrelationID)
		if raw == "" && d.opts.headerName != "" {
			raw = strings.TrimSpace(msg.Header.Get(d.opts.headerName))
		}
	}

	switch {
	case raw == "" && d.opts.requireKey:
		return "", idempo.ErrMissingKey
	case raw == "":
		return "", nil
	case len(raw) > maxKeyLength:
		return "", errors.Wrapf(idempo.ErrInvalidKey, "key is longer than %d characters", maxKeyLength)
	}
	return d.opts.keyPrefix + raw, nil
}

func (d *deduplicator) fingerprint(e retry.Event) idempo.Fingerprint {
	msg := e.Message()
	body := sha256.Sum256(msg.Body)
	return idempo.Fingerprint{
		Operation:   operationConsume,
		Target:      e.Queue(),
		HeadersHash: hashHeaders(msg.Header, d.opts.fingerprintHeaders),
		BodyHash:    hex.EncodeToString(body[:]),
	}
}

// acquire processes the key once more when the lock it waited for was released
// without a record, which only happens with idempo.WithWaitForInProgress.
func (d *deduplicator) acquire(ctx context.Context, key string, fp idempo.Fingerprint) (idempo.Result, error) {
	res, err := d.engine.Process(ctx, key, fp)
	if errors.Is(err, idempo.ErrKeyNotFound) {
		res, err = d.engine.Process(ctx, key, fp)
	}
	return res, err
}

func (d *deduplicator) replay(ctx context.Context, e retry.Event, resp *idempo.Response) error {
	msg := e.Message()
	d.opts.logger.Debug(
		"idempotency: skipping duplicate message",
		"correlationId", msg.CorrelationID,
		"queue", e.Queue(),
		"outcome", outcome(resp),
	)
	if d.opts.onReplay != nil {
		d.opts.onReplay(e)
	}
	if h := e.Handle(); h != nil && d.opts.ackOnReplay {
		return h.Ack(ctx)
	}
	return nil
}

// own runs next while holding the lock. The record is committed only when the
// message completed, rejected and failed messages release the lock.
func (d *deduplicator) own(ctx context.Context, next retry.Handler, e retry.Event, key, token string) error {
	keepLock := false
	defer func() {
		if !keepLock {
			d.release(ctx, e, key, token)
		}
	}()

	if err := next(ctx, e); err != nil {
		return err
	}

	h := e.Handle()
	if h != nil && h.Rejected() {
		return nil
	}

	resp := &idempo.Response{Metadata: map[string][]string{OutcomeMetadataKey: {OutcomeHandled}}}
	if h != nil && h.Acked() {
		resp.Metadata[OutcomeMetadataKey] = []string{OutcomeAcked}
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.commitTimeout)
	defer cancel()
	if err := d.engine.Commit(commitCtx, key, token, resp); err != nil {
		err = errors.Wrapf(err, "idempotency: cannot commit %q", key)
		d.opts.errorHandler(err, e.Message())

		switch d.opts.commitErrorMode {
		case CommitFailClosedKeepLock:
			keepLock = true
			return err
		case CommitFailClosedUnlock:
			return err
		}
		return nil
	}

	keepLock = true
	return nil
}

func (d *deduplicator) release(ctx context.Context, e retry.Event, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.commitTimeout)
	defer cancel()
	if err := d.engine.Unlock(releaseCtx, key, token); err != nil {
		d.opts.errorHandler(errors.Wrapf(err, "idempotency: cannot release %q", key), e.Message())
	}
}

func outcome(resp *idempo.Response) string {
	if v := resp.Metadata[OutcomeMetadataKey]; len(v) > 0 {
		return v[0]
	}
	return OutcomeHandled
}

func hashHeaders(header retry.Header, keys []string) string {
	if len(keys) == 0 {
		return ""
	}

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(header.Get(k)))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeHeaders drops blanks and duplicates and sorts keys,
// so the fingerprint does not depend on option order
func normalizeHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	res := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if _, ok := seen[h]; ok || h == "" {
			continue
		}
		seen[h] = struct{}{}
		res = append(res, h)
	}
	sort.Strings(res)
	return res
}
