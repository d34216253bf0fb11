package retry_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/velmie/retry"
	mock_retry "github.com/velmie/retry/mock"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		handler       retry.Handler
		expectPanic   bool
		expectErr     bool
		expectedError string
	}{
		{
			name: "no_panic",
			handler: func(context.Context, retry.Event) error {
				return nil
			},
			expectPanic: false,
			expectErr:   false,
		},
		{
			name: "panic_with_string",
			handler: func(context.Context, retry.Event) error {
				panic("test panic")
			},
			expectPanic:   true,
			expectErr:     true,
			expectedError: "panic recovered: test panic",
		},
		{
			name: "panic_with_error",
			handler: func(context.Context, retry.Event) error {
				panic(errors.New("panic error"))
			},
			expectPanic:   true,
			expectErr:     true,
			expectedError: "panic recovered: panic error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := retry.PanicRecoveryMiddleware()
			wrappedHandler := middleware(tt.handler)

			err := wrappedHandler(context.Background(), nil) // nil - event is not used

			if tt.expectErr {
				require.Error(t, err)
				if tt.expectPanic {
					require.True(t, strings.Contains(err.Error(), tt.expectedError), "error must contain panic message")
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPanicRecoveryMiddleware_GuardViolationPropagates(t *testing.T) {
	violation := &retry.GuardViolation{Action: "ack", Calls: 2, Max: 1, CorrelationID: "abc"}
	wrapped := retry.PanicRecoveryMiddleware()(func(context.Context, retry.Event) error {
		panic(violation)
	})

	require.PanicsWithError(t, violation.Error(), func() {
		_ = wrapped(context.Background(), nil)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)

	logger := mock_retry.NewMockLogger(ctrl)
	noErrorHandler := func(context.Context, retry.Event) error {
		return nil
	}
	handlerWithError := func(err error) retry.Handler {
		return func(context.Context, retry.Event) error {
			return err
		}
	}

	const (
		correlationID = "test-correlation-id"
		queue         = "test-queue"
	)
	msg := &retry.Message{
		CorrelationID: correlationID,
		Header:        retry.Header{"test": "value"},
		Body:          []byte("test-data"),
	}
	event := mock_retry.NewMockEvent(ctrl)
	event.EXPECT().Message().Return(msg).AnyTimes()
	event.EXPECT().Queue().Return(queue).AnyTimes()
	event.EXPECT().RetriesRemaining().Return(0, false).AnyTimes()

	tests := []struct {
		name       string
		middleware retry.Middleware
		wantLog    func()
		handler    retry.Handler
	}{
		{
			name:       "success_no_options",
			middleware: retry.LoggingMiddleware(logger),
			wantLog: func() {
				logger.
					EXPECT().
					Info(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
					)
			},
		},
		{
			name:       "error_logged",
			middleware: retry.LoggingMiddleware(logger),
			wantLog: func() {
				logger.
					EXPECT().
					Error(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"error", "test error",
					)
			},
			handler: handlerWithError(errors.New("test error")),
		},
		{
			name: "body_logged_on_error",
			middleware: retry.LoggingMiddleware(
				logger,
				retry.WithLogBodyOnError(true),
				retry.WithLogError(false), // disable error logging
			),
			wantLog: func() {
				logger.
					EXPECT().
					Error(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"body", string(msg.Body),
					)
			},
			handler: handlerWithError(errors.New("test error")),
		},
		{
			name: "body_always_logged",
			middleware: retry.LoggingMiddleware(
				logger,
				retry.WithLogBody(true),
			),
			wantLog: func() {
				logger.
					EXPECT().
					Info(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"body", string(msg.Body),
					)
			},
		},
		{
			name: "header_logged",
			middleware: retry.LoggingMiddleware(
				logger,
				retry.WithLogHeader(true),
			),
			wantLog: func() {
				logger.
					EXPECT().
					Info(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"header", fmt.Sprintf("%+v", msg.Header),
					)
			},
		},
		{
			name: "header_logged_custom_func",
			middleware: retry.LoggingMiddleware(
				logger,
				retry.WithLogHeader(true),
				retry.WithLogHeaderFunc(func(e retry.Event) string {
					return "custom header formatting"
				}),
			),
			wantLog: func() {
				logger.
					EXPECT().
					Info(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"header", "custom header formatting",
					)
			},
		},
		{
			name: "body_logged_custom_func",
			middleware: retry.LoggingMiddleware(
				logger,
				retry.WithLogBody(true),
				retry.WithLogBodyFunc(func(e retry.Event) string {
					return "custom body formatting"
				}),
			),
			wantLog: func() {
				logger.
					EXPECT().
					Info(
						"event processed",
						"correlationId", correlationID,
						"queue", queue,
						"duration", gomock.Any(),
						"body", "custom body formatting",
					)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wantLog()
			handler := tt.handler
			if handler == nil {
				handler = noErrorHandler
			}
			mwHandler := tt.middleware(handler)

			_ = mwHandler(context.Background(), event)
		})
	}
}

func TestLoggingMiddleware_RetriesRemaining(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mock_retry.NewMockLogger(ctrl)
	logger.EXPECT().Info(
		"event processed",
		"correlationId", "abc",
		"queue", testQueue,
		"duration", gomock.Any(),
		"retriesRemaining", 2,
	)

	c := retry.New(retry.WithMaxRetries(2), retry.WithSetRetriesRemaining(true), retry.WithLogger(discardLogger()))
	handler := retry.LoggingMiddleware(logger)(func(context.Context, retry.Event) error { return nil })

	err := c.HandleIncoming(context.Background(), nil, newMessage("abc", nil), tracked, handler)
	require.NoError(t, err)
}

func TestAutoRejectMiddleware(t *testing.T) {
	appErr := errors.New("processing failed")

	t.Run("rejects_on_error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ch := mock_retry.NewMockChannel(ctrl)
		msg := newMessage("abc", nil)
		ch.EXPECT().Reject(msg, true).Return(nil)

		c := retry.New(retry.WithLogger(discardLogger()))
		handler := retry.Chain(
			func(context.Context, retry.Event) error { return appErr },
			retry.AutoRejectMiddleware(),
		)
		err := c.HandleIncoming(context.Background(), ch, msg, tracked, handler)
		require.ErrorIs(t, err, appErr)
	})

	t.Run("skips_when_handler_acted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		ch := mock_retry.NewMockChannel(ctrl)
		msg := newMessage("abc", nil)
		ch.EXPECT().Reject(msg, true).Return(nil).Times(1)

		c := retry.New(retry.WithLogger(discardLogger()))
		handler := retry.Chain(
			func(ctx context.Context, e retry.Event) error {
				_ = e.Handle().Reject(ctx)
				return appErr
			},
			retry.AutoRejectMiddleware(),
		)
		err := c.HandleIncoming(context.Background(), ch, msg, tracked, handler)
		require.ErrorIs(t, err, appErr)
	})

	t.Run("untracked_event", func(t *testing.T) {
		c := retry.New(retry.WithLogger(discardLogger()))
		handler := retry.Chain(
			func(context.Context, retry.Event) error { return appErr },
			retry.AutoRejectMiddleware(),
		)
		err := c.HandleIncoming(context.Background(), nil, newMessage("abc", nil), retry.IncomingOptions{}, handler)
		require.ErrorIs(t, err, appErr)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) retry.Middleware {
		return func(next retry.Handler) retry.Handler {
			return func(ctx context.Context, e retry.Event) error {
				order = append(order, name)
				return next(ctx, e)
			}
		}
	}
	h := retry.Chain(func(context.Context, retry.Event) error {
		order = append(order, "handler")
		return nil
	}, mw("first"), mw("second"))

	require.NoError(t, h(context.Background(), nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}
