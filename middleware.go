package retry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// PanicRecoveryMiddleware creates a middleware to recover from panics.
// It converts the panic into a regular error that can be returned and handled.
// A *GuardViolation is a programming error and is panicked again.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, e Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if gv, ok := r.(*GuardViolation); ok {
						panic(gv)
					}
					errMsg := fmt.Sprintf("panic recovered: %v\n%s", r, debug.Stack())
					err = errors.New(errMsg)
				}
			}()
			return next(ctx, e)
		}
	}
}

// LoggingMiddleware creates a middleware for logging the results of event processing.
// It logs whether the processing was successful (OK) or resulted in an error (ERR),
// along with the correlation id, the remaining retries and the time taken to process it.
func LoggingMiddleware(logger Logger, options ...LoggingMiddlewareOption) Middleware {
	opts := &loggingMiddlewareOptions{
		logError:  true,
		logHeader: false,
		logHeaderFunc: func(e Event) string {
			return fmt.Sprintf("%+v", e.Message().Header)
		},
		logBodyFunc: func(e Event) string {
			const logBodyMax = 4096
			data := e.Message().Body
			if len(data) > logBodyMax {
				return string(data[:logBodyMax])
			}
			return string(data)
		},
	}

	for _, opt := range options {
		opt(opts)
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, e Event) error {
			startTime := time.Now()
			err := next(ctx, e)
			duration := time.Since(startTime)

			m := e.Message()
			args := []any{
				"correlationId", m.CorrelationID,
				"queue", e.Queue(),
				"duration", duration,
			}
			if remaining, ok := e.RetriesRemaining(); ok {
				args = append(args, "retriesRemaining", remaining)
			}
			if err != nil && opts.logError {
				args = append(args, "error", err.Error())
			}
			if opts.logHeader {
				args = append(args, "header", opts.logHeaderFunc(e))
			}
			logF := logger.Info
			if err != nil {
				logF = logger.Error
			}
			if opts.logBody || err != nil && opts.logBodyOnError {
				args = append(args, "body", opts.logBodyFunc(e))
			}
			logF("event processed", args...)

			return err
		}
	}
}

// loggingMiddlewareOptions holds configuration options for the logging middleware.
type loggingMiddlewareOptions struct {
	logError       bool                 // Whether to log errors.
	logHeader      bool                 // Whether to log headers.
	logHeaderFunc  func(e Event) string // Function to format the header for logging.
	logBody        bool                 // Whether to log the body.
	logBodyOnError bool                 // Whether to log the body only on errors.
	logBodyFunc    func(e Event) string // Function to format the body for logging.
}

// LoggingMiddlewareOption defines a function type for setting options on loggingMiddlewareOptions.
type LoggingMiddlewareOption func(*loggingMiddlewareOptions)

// WithLogError returns a LoggingMiddlewareOption setting the logError flag.
// If set to true, errors encountered during processing will be logged.
func WithLogError(logError bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logError = logError
	}
}

// WithLogHeader returns a LoggingMiddlewareOption setting the logHeader flag.
func WithLogHeader(logHeader bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logHeader = logHeader
	}
}

// WithLogHeaderFunc returns a LoggingMiddlewareOption for setting a custom function
// to format the header for logging.
func WithLogHeaderFunc(logHeaderFunc func(e Event) string) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logHeaderFunc = logHeaderFunc
	}
}

// WithLogBody returns a LoggingMiddlewareOption setting the LogBody flag.
func WithLogBody(logBody bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBody = logBody
	}
}

// WithLogBodyOnError returns a LoggingMiddlewareOption setting the LogBodyOnError flag.
// If set to true, the body will be logged only when an error is encountered.
func WithLogBodyOnError(logBodyOnError bool) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBodyOnError = logBodyOnError
	}
}

// WithLogBodyFunc returns a LoggingMiddlewareOption for setting a custom function
// to format the body for logging.
func WithLogBodyFunc(logBodyFunc func(e Event) string) LoggingMiddlewareOption {
	return func(o *loggingMiddlewareOptions) {
		o.logBodyFunc = logBodyFunc
	}
}

// AutoRejectMiddleware rejects tracked events whose handler returned an error
// without calling any terminal action itself.
func AutoRejectMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, e Event) error {
			err := next(ctx, e)
			h := e.Handle()
			if err == nil || h == nil || h.called() {
				return err
			}
			if rErr := h.Reject(ctx); rErr != nil {
				return fmt.Errorf("%w (reject failed: %s)", err, rErr)
			}
			return err
		}
	}
}
