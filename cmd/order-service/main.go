package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/hycst/lab3-order-service/internal/cache"
	"github.com/hycst/lab3-order-service/internal/config"
	"github.com/hycst/lab3-order-service/internal/discovery"
	"github.com/hycst/lab3-order-service/internal/handlers"
	"github.com/hycst/lab3-order-service/internal/messaging"
	"github.com/hycst/lab3-order-service/internal/publisher"
	"github.com/hycst/lab3-order-service/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("order service stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Broker connects lazily on the first order
	broker := newBroker(cfg, logger)
	defer broker.Close()

	orderPublisher := publisher.NewOrderPublisher(broker, cfg.PublishTimeout, logger)

	var orderHandler *handlers.OrderHandler
	if redisCache := connectRedis(ctx, cfg, logger); redisCache != nil {
		defer redisCache.Close()
		orderHandler = handlers.NewOrderHandler(orderPublisher, redisCache, cfg.MaxBodyBytes, logger)
	} else {
		orderHandler = handlers.NewOrderHandler(orderPublisher, nil, cfg.MaxBodyBytes, logger)
	}

	router := handlers.NewRouter(logger, handlers.NewSystemHandler(cfg), orderHandler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if consul := registerConsul(cfg, logger); consul != nil {
		defer consul.Deregister(cfg.ServiceID)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("order service listening",
			"port", cfg.Port,
			"broker", cfg.Broker,
			"queue", broker.Destination(),
			"rabbitmq_url", config.MaskCredentials(cfg.RabbitMQURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newBroker(cfg config.Config, logger *slog.Logger) messaging.Broker {
	if cfg.Broker == config.BrokerKafka {
		return messaging.NewKafka(cfg.KafkaBrokers, cfg.QueueName, logger)
	}

	return messaging.NewRabbitMQ(
		cfg.RabbitMQURL,
		cfg.QueueName,
		messaging.Dialer(cfg.ServiceID, cfg.DialTimeout),
		logger,
	)
}

// connectRedis returns nil when idempotency is disabled or Redis is down.
func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *cache.RedisCache {
	if cfg.RedisAddr == "" {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	redisCache, err := cache.NewRedisCache(pingCtx, cfg.RedisAddr, cfg.IdempotencyTTL)
	if err != nil {
		logger.Warn("idempotency disabled", "error", err)
		return nil
	}

	logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	return redisCache
}

// registerConsul returns nil when registration is disabled or failed.
func registerConsul(cfg config.Config, logger *slog.Logger) *discovery.ConsulClient {
	if cfg.ConsulAddr == "" {
		return nil
	}

	consul, err := discovery.NewConsulClient(cfg.ConsulAddr, logger)
	if err != nil {
		logger.Warn("service registration skipped", "error", err)
		return nil
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		logger.Warn("service registration skipped", "error", err)
		return nil
	}

	err = consul.Register(discovery.ServiceConfig{
		Name: cfg.ServiceName,
		ID:   cfg.ServiceID,
		Port: port,
		Tags: []string{"api", "orders"},
	})
	if err != nil {
		logger.Warn("service registration skipped", "error", err)
		return nil
	}

	return consul
}
