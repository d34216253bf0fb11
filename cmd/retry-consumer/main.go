package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/retry"
	"github.com/velmie/retry/config"
	"github.com/velmie/retry/idempotency"
	"github.com/velmie/retry/natsjs"
	"github.com/velmie/retry/natsjs/conn"
	"github.com/velmie/retry/otelretry"
	"github.com/velmie/retry/rabbitmq"
)

func main() {
	configPath := flag.String("config", "retry.toml", "path to the TOML configuration")
	transport := flag.String("transport", "amqp", "transport to consume from: amqp or nats")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(*configPath, *transport, logger); err != nil {
		logger.Error("retry-consumer stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(configPath, transport string, logger *slog.Logger) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	coordinator := retry.New(append(cfg.Options(), retry.WithStore(store), retry.WithLogger(logger))...)

	middleware := []retry.Middleware{
		retry.PanicRecoveryMiddleware(),
		retry.LoggingMiddleware(logger, retry.WithLogBodyOnError(true)),
		otelretry.ConsumerMiddleware(),
		retry.AutoRejectMiddleware(),
	}
	// innermost, so messages locked by another consumer are requeued by AutoReject
	if engine, opts, closer := cfg.OpenIdempotency(); engine != nil {
		defer closer.Close()
		opts = append(opts, idempotency.WithLogger(logger))
		middleware = append(middleware, idempotency.Middleware(engine, opts...))
	}
	handler := retry.Chain(
		retry.CreateHandler(retry.DecoderFunc(json.Unmarshal), consume, retry.DecodeUseLogger(logger)),
		middleware...,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch transport {
	case "amqp":
		return consumeAMQP(ctx, cfg.AMQP, coordinator, handler, logger)
	case "nats":
		return consumeNATS(ctx, cfg.NATS, coordinator, handler, logger)
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}

// consume acks every message which could be decoded as a JSON object
func consume(ctx context.Context, payload map[string]any, h *retry.Handle) error {
	if h == nil {
		return nil
	}
	return h.Ack(ctx)
}

func consumeAMQP(
	ctx context.Context,
	cfg config.AMQPConfig,
	coordinator *retry.Coordinator,
	handler retry.Handler,
	logger *slog.Logger,
) error {
	connection, err := amqp.Dial(cfg.URL)
	if err != nil {
		return fmt.Errorf("cannot connect to RabbitMQ: %w", err)
	}
	defer connection.Close()

	ch, err := connection.Channel()
	if err != nil {
		return fmt.Errorf("cannot open channel: %w", err)
	}
	defer ch.Close()

	if err = ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	for _, q := range []string{cfg.Queue, retry.DeadLetterQueue(cfg.Queue)} {
		if _, err = ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("cannot declare queue %q: %w", q, err)
		}
	}

	consumer := rabbitmq.NewConsumer(
		coordinator,
		handler,
		rabbitmq.WithConsumerTag(cfg.ConsumerTag),
		rabbitmq.WithLogger(logger),
	)
	err = consumer.Subscribe(ctx, ch, cfg.Queue)
	if err == context.Canceled {
		return nil
	}
	return err
}

func consumeNATS(
	ctx context.Context,
	cfg config.NATSConfig,
	coordinator *retry.Coordinator,
	handler retry.Handler,
	logger *slog.Logger,
) error {
	opts := []conn.Option{conn.Logger(logger)}
	if cfg.URL != "" {
		opts = append(opts, conn.URL(cfg.URL))
	}
	c, err := conn.Establish(opts...)
	if err != nil {
		return fmt.Errorf("cannot connect to NATS: %w", err)
	}
	defer c.Close()

	js := c.JetStreamContext()
	if err = natsjs.EnsureStream(js, cfg.Stream, cfg.Subject, retry.DeadLetterQueue(cfg.Subject)); err != nil {
		return err
	}

	sub, err := natsjs.NewSubscriber(js, coordinator).Subscribe(ctx, cfg.Subject, cfg.Durable, handler)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Drain()
}
