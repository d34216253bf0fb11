package rabbitmq_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velmie/retry"
	"github.com/velmie/retry/rabbitmq"
)

type mockAcknowledger struct {
	mock.Mock
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	args := m.Called(tag, multiple)
	return args.Error(0)
}

func (m *mockAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	args := m.Called(tag, multiple, requeue)
	return args.Error(0)
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	args := m.Called(tag, requeue)
	return args.Error(0)
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	published []published
}

func (p *recordingPublisher) PublishWithContext(
	_ context.Context,
	exchange string,
	key string,
	_ bool,
	_ bool,
	msg amqp.Publishing,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (p *recordingPublisher) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not supported")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMessage(t *testing.T) {
	d := amqp.Delivery{
		CorrelationId: "cid",
		MessageId:     "mid",
		RoutingKey:    "orders",
		Redelivered:   true,
		Headers:       amqp.Table{"str": "v", "num": int32(5), "bytes": []byte("b")},
		Body:          []byte("body"),
	}
	msg := rabbitmq.NewMessage(d)

	require.Equal(t, "cid", msg.CorrelationID)
	require.Equal(t, "orders", msg.RoutingKey)
	require.Equal(t, retry.FlagDelivery{Redelivered: true}, msg.Delivery)
	require.Equal(t, retry.Header{"str": "v", "num": "5", "bytes": "b"}, msg.Header)
	require.Equal(t, []byte("body"), msg.Body)

	d.CorrelationId = ""
	d.Headers = amqp.Table{retry.HdrCorrelationID: "from-header"}
	require.Equal(t, "from-header", rabbitmq.NewMessage(d).CorrelationID)

	d.Headers = nil
	require.Equal(t, "mid", rabbitmq.NewMessage(d).CorrelationID)
}

func TestChannel(t *testing.T) {
	ack := new(mockAcknowledger)
	ack.On("Ack", uint64(7), false).Return(nil).Once()
	ack.On("Reject", uint64(7), true).Return(nil).Once()
	pub := new(recordingPublisher)

	d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, ContentType: "application/json", CorrelationId: "cid"}
	ch := rabbitmq.NewChannel(d, pub)

	require.NoError(t, ch.Ack(nil))
	require.NoError(t, ch.Reject(nil, true))
	require.NoError(t, ch.SendToQueue(context.Background(), "orders.error", []byte("body"), retry.Header{"rejected": "4"}))

	ack.AssertExpectations(t)
	require.Len(t, pub.published, 1)
	p := pub.published[0]
	require.Equal(t, "", p.exchange)
	require.Equal(t, "orders.error", p.key)
	require.Equal(t, amqp.Table{"rejected": "4"}, p.msg.Headers)
	require.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	require.Equal(t, "cid", p.msg.CorrelationId)
	require.Equal(t, []byte("body"), p.msg.Body)
}

func TestPublisher(t *testing.T) {
	pub := new(recordingPublisher)
	p := rabbitmq.NewPublisher(pub, rabbitmq.WithContentType("text/plain"))

	msg := &retry.Message{Body: []byte("hello")}
	require.NoError(t, p.Publish(context.Background(), "orders", msg))

	require.Len(t, pub.published, 1)
	got := pub.published[0]
	require.Equal(t, "orders", got.key)
	require.Equal(t, "text/plain", got.msg.ContentType)
	require.NotEmpty(t, got.msg.CorrelationId)
	require.Equal(t, msg.CorrelationID, got.msg.CorrelationId)
	require.Equal(t, msg.CorrelationID, got.msg.Headers[retry.HdrCorrelationID])
	require.NotEmpty(t, got.msg.MessageId)

	pub.err = errors.New("channel closed")
	require.ErrorIs(t, p.Publish(context.Background(), "orders", msg), pub.err)
}

// serve feeds deliveries to a consumer and waits until all of them are processed
func serve(t *testing.T, c *rabbitmq.Consumer, pub rabbitmq.AMQPPublisher, opts retry.IncomingOptions, ds ...amqp.Delivery) {
	t.Helper()
	deliveries := make(chan amqp.Delivery, len(ds))
	for _, d := range ds {
		deliveries <- d
	}
	close(deliveries)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Serve(ctx, pub, deliveries, opts))
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	pub := new(recordingPublisher)
	coordinator := retry.New(retry.WithMaxRetries(2), retry.WithLogger(discardLogger()))

	handler := retry.Chain(
		func(context.Context, retry.Event) error { return errors.New("cannot process") },
		retry.AutoRejectMiddleware(),
	)
	consumer := rabbitmq.NewConsumer(coordinator, handler)

	ack := new(mockAcknowledger)
	ack.On("Reject", uint64(1), true).Return(nil).Once()
	ack.On("Reject", uint64(2), true).Return(nil).Once()
	ack.On("Reject", uint64(3), false).Return(nil).Once()

	delivery := func(tag uint64, redelivered bool) amqp.Delivery {
		return amqp.Delivery{
			Acknowledger:  ack,
			DeliveryTag:   tag,
			CorrelationId: "order-1",
			RoutingKey:    "orders",
			Redelivered:   redelivered,
			Body:          []byte(`{"id":1}`),
		}
	}
	serve(t, consumer, pub, retry.IncomingOptions{Ack: true, Queue: "orders"},
		delivery(1, false), delivery(2, true), delivery(3, true))

	ack.AssertExpectations(t)
	require.Len(t, pub.published, 1)
	require.Equal(t, "orders.error", pub.published[0].key)
	require.Equal(t, "3", pub.published[0].msg.Headers[retry.HdrRejected])
	require.Equal(t, []byte(`{"id":1}`), pub.published[0].msg.Body)
}

func TestConsumer_Acks(t *testing.T) {
	coordinator := retry.New(retry.WithLogger(discardLogger()))
	consumer := rabbitmq.NewConsumer(coordinator, func(ctx context.Context, e retry.Event) error {
		return e.Handle().Ack(ctx)
	}, rabbitmq.WithLogger(discardLogger()))

	ack := new(mockAcknowledger)
	ack.On("Ack", uint64(1), false).Return(nil).Once()

	serve(t, consumer, new(recordingPublisher), retry.IncomingOptions{Ack: true},
		amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, MessageId: "m-1", RoutingKey: "orders"})

	ack.AssertExpectations(t)
}

func TestConsumer_MissingCorrelationIDIsDropped(t *testing.T) {
	coordinator := retry.New(retry.WithLogger(discardLogger()))
	consumer := rabbitmq.NewConsumer(coordinator, func(context.Context, retry.Event) error {
		t.Fatal("handler must not be invoked")
		return nil
	})

	ack := new(mockAcknowledger)
	ack.On("Reject", uint64(1), false).Return(nil).Once()

	serve(t, consumer, new(recordingPublisher), retry.IncomingOptions{Ack: true},
		amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "orders"})

	ack.AssertExpectations(t)
}

func TestConsumer_StopsOnContextDone(t *testing.T) {
	coordinator := retry.New(retry.WithLogger(discardLogger()))
	consumer := rabbitmq.NewConsumer(coordinator, func(context.Context, retry.Event) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := consumer.Serve(ctx, new(recordingPublisher), make(chan amqp.Delivery), retry.IncomingOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestConsumer_SubscribeError(t *testing.T) {
	coordinator := retry.New(retry.WithLogger(discardLogger()))
	consumer := rabbitmq.NewConsumer(coordinator, func(context.Context, retry.Event) error { return nil })
	require.Error(t, consumer.Subscribe(context.Background(), new(recordingPublisher), "orders"))
}
