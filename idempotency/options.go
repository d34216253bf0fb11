package idempotency

import (
	"log/slog"
	"time"

	"github.com/velmie/retry"
)

const (
	// DefaultKeyPrefix separates idempotency records from other keys of a shared store
	DefaultKeyPrefix = "retry.idempotency:"
	// DefaultHeaderName is read when an untracked message has no correlation id
	DefaultHeaderName = "Idempotency-Key"

	defaultCommitTimeout = 5 * time.Second
)

// CommitErrorMode defines what happens when the completion record cannot be stored
type CommitErrorMode int

const (
	// CommitFailOpen reports the failure and treats the message as handled.
	// A duplicate delivery is processed again.
	CommitFailOpen CommitErrorMode = iota
	// CommitFailClosedUnlock returns the error and releases the lock
	CommitFailClosedUnlock
	// CommitFailClosedKeepLock returns the error and keeps the lock until it expires,
	// duplicates fail with idempo.ErrInProgress meanwhile
	CommitFailClosedKeepLock
)

type options struct {
	keyPrefix          string
	headerName         string
	requireKey         bool
	fingerprintHeaders []string
	commitTimeout      time.Duration
	commitErrorMode    CommitErrorMode
	errorHandler       retry.ErrorHandler
	ackOnReplay        bool
	onReplay           func(retry.Event)
	logger             retry.Logger
}

// Option configures the middleware
type Option func(*options)

// WithKeyPrefix replaces DefaultKeyPrefix
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithHeaderName sets the header used as the key of untracked messages without a
// correlation id. An empty name disables the fallback.
func WithHeaderName(name string) Option {
	return func(o *options) {
		o.headerName = name
	}
}

// WithRequireKey makes messages without a key fail with idempo.ErrMissingKey
// instead of passing through unguarded.
func WithRequireKey(required bool) Option {
	return func(o *options) {
		o.requireKey = required
	}
}

// WithFingerprintHeaders adds header values to the message fingerprint.
// A duplicate whose fingerprint differs fails with idempo.ErrKeyConflict.
func WithFingerprintHeaders(headers ...string) Option {
	return func(o *options) {
		o.fingerprintHeaders = append(o.fingerprintHeaders, headers...)
	}
}

// WithCommitTimeout bounds storing and releasing records, which outlive the message context
func WithCommitTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.commitTimeout = timeout
		}
	}
}

func WithCommitErrorMode(mode CommitErrorMode) Option {
	return func(o *options) {
		o.commitErrorMode = mode
	}
}

// WithErrorHandler receives failures to store or release records
func WithErrorHandler(handler retry.ErrorHandler) Option {
	return func(o *options) {
		o.errorHandler = handler
	}
}

// WithAckOnReplay toggles acking tracked duplicates, enabled by default
func WithAckOnReplay(ack bool) Option {
	return func(o *options) {
		o.ackOnReplay = ack
	}
}

// WithOnReplay is called for every duplicate skipped by the middleware
func WithOnReplay(fn func(retry.Event)) Option {
	return func(o *options) {
		o.onReplay = fn
	}
}

func WithLogger(logger retry.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		keyPrefix:     DefaultKeyPrefix,
		headerName:    DefaultHeaderName,
		commitTimeout: defaultCommitTimeout,
		ackOnReplay:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	switch o.commitErrorMode {
	case CommitFailOpen, CommitFailClosedUnlock, CommitFailClosedKeepLock:
	default:
		o.commitErrorMode = CommitFailOpen
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.errorHandler == nil {
		o.errorHandler = retry.LogErrorHandler(o.logger)
	}
	o.fingerprintHeaders = normalizeHeaders(o.fingerprintHeaders)
	return o
}
