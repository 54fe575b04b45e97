// Command order-tail drains the order queue and logs each order. It is a
// competing consumer: every order it acks is gone for downstream workers,
// so run it against a queue nobody else consumes, such as a dev broker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hycst/lab3-order-service/internal/config"
	"github.com/hycst/lab3-order-service/internal/consumer"
	"github.com/hycst/lab3-order-service/internal/messaging"
	"github.com/hycst/lab3-order-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("order tail stopped", "error", config.MaskCredentials(err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	mq := messaging.NewRabbitMQ(
		cfg.RabbitMQURL,
		cfg.QueueName,
		messaging.Dialer(cfg.ServiceID+"-tail", cfg.DialTimeout),
		logger,
	)
	defer mq.Close()

	messages, err := mq.Consume(ctx, "order-tail")
	if err != nil {
		return err
	}

	// Deliveries are acked, so orders read here never reach the other
	// consumers of the queue.
	logger.Warn("draining queue; orders consumed here are removed from it", "queue", cfg.QueueName)

	handled := consumer.NewOrderConsumer(logger).Run(ctx, messages)
	logger.Info("order tail stopped", "orders", handled)
	return nil
}
