package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bargain/internal/arbitration"
	"bargain/internal/bargain/handler"
	"bargain/internal/bargain/repository"
	"bargain/internal/bargain/service"
	"bargain/internal/bargain/validator"
	"bargain/internal/cache"
	"bargain/internal/capsule"
	"bargain/internal/events"
	"bargain/internal/policy"
	"bargain/pkg/app"
	"bargain/pkg/clock"
	"bargain/pkg/config"
	"bargain/pkg/kafka"
	kafka_middleware "bargain/pkg/kafka/middleware"
	"bargain/pkg/middleware"
)

const (
	ServiceName = "bargain"

	startupTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	cfg.SetMySQL()

	cfg.Log.Info("Starting Bargain service")
	clk := clock.Real()
	serverApp := app.NewApplication(cfg)
	serverApp.OnShutdown(cfg.GracefulShutdown)

	sharedCache := initCache(cfg, clk)
	registry := initPolicies(cfg, sharedCache, clk)
	serverApp.AddWorker("policy-refresh", policyRefresher(cfg, registry))

	telemetry := handler.NewTelemetry()
	sessions := repository.NewMongoSessionRepository(cfg)
	locks := arbitration.NewManager(repository.NewMongoLockStore(cfg), cfg.LockTTL, cfg.Log)
	publisher := initEvents(cfg, serverApp, locks, telemetry)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})

	signer, err := capsule.NewSigner(cfg.CapsuleSecret, cfg.CapsuleTTL, cfg.CapsuleClockSkew)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize capsule signer", "error", err)
	}

	bargainService := service.NewBargainService(service.Dependencies{
		Sessions:       sessions,
		Snapshots:      repository.NewMongoSnapshotRepository(cfg),
		Events:         repository.NewMongoEventRepository(cfg),
		NegotiationLog: repository.NewNegotiationLogRepository(cfg.Client.MySQL, cfg.WriteTimeout),
		Policies:       registry,
		Cache:          cache.NewReader(sharedCache, cfg.Log),
		Signer:         signer,
		Locks:          locks,
		Publisher:      publisher,
		Validator:      validator.NewBargainValidator(cfg.Log),
		Clock:          clk,
	}, cfg)
	serverApp.OnShutdown(bargainService.Close)

	sweeper := service.NewSweeper(sessions, publisher, clk, cfg.SweepInterval, cfg.WriteTimeout, cfg.Log)
	serverApp.AddWorker("session-sweeper", sweeper.Run)

	var idempotencyStore middleware.IdempotencyStore
	if cfg.Client.Redis != nil {
		idempotencyStore = middleware.NewSharedIdempotencyStore(sharedCache, cfg.IdempotencyTTL, cfg.Log)
	}

	serverApp.SetApp(
		handler.NewBargainHandler(bargainService, telemetry, cfg.AdminToken, cfg.Log),
		handler.NewHealthHandler(bargainService, cfg.ServiceVersion, cfg.Log),
		idempotencyStore,
	)
	cfg.Log.Info("Bargain service initialized", "database", cfg.MongoDatabaseName, "policy_version", registry.Active().Version)
	serverApp.Run()
}

func initCache(cfg *config.Config, clk clock.Clock) cache.Cache {
	if cfg.Client.Redis != nil {
		return cache.NewRedis(cfg.Client.Redis, cfg.RedisOpTimeout)
	}
	return cache.NewMemory(clk)
}

// initPolicies loads the active policy. A configured policy file is
// published when the store has none yet.
func initPolicies(cfg *config.Config, c cache.Cache, clk clock.Clock) *policy.Registry {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	registry := policy.NewRegistry(repository.NewMongoPolicyStore(cfg), c, cfg.Log, clk.Now)
	if err := registry.Load(ctx); err != nil {
		cfg.Log.Error("Policy load failed, continuing with fallback policy", "error", err)
	}

	if cfg.PolicyFile != "" && registry.Active().Version == policy.FallbackVersion {
		raw, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			cfg.Log.Fatal("Failed to read policy file", "path", cfg.PolicyFile, "error", err)
		}
		if _, err := registry.Publish(ctx, raw); err != nil {
			cfg.Log.Fatal("Failed to publish policy file", "path", cfg.PolicyFile, "error", err)
		}
	}
	return registry
}

func policyRefresher(cfg *config.Config, registry *policy.Registry) app.Worker {
	return func(ctx context.Context) {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				changed, err := registry.Refresh(ctx)
				if err != nil {
					cfg.Log.Warn("Policy refresh failed", "error", err)
					continue
				}
				if changed {
					cfg.Log.Info("Active policy changed", "version", registry.Active().Version)
				}
			}
		}
	}
}

// initEvents wires the Kafka producer and the booking outcome consumer,
// or a log-only publisher when Kafka is disabled.
func initEvents(cfg *config.Config, serverApp *app.Application, locks *arbitration.Manager, telemetry *handler.Telemetry) events.Publisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Warn("Kafka disabled, session events are only logged")
		return events.NewLogPublisher(cfg.Log)
	}

	topics := cfg.Kafka.Topics
	metrics := kafka_middleware.NewMetrics()
	telemetry.AddSource("kafka", metrics.Snapshot)

	producer, err := kafka.NewProducer(cfg.Kafka, topics.Events, topics.EventsDLQ, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topics.Events, "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware(metrics))

	consumer, err := kafka.NewConsumer(cfg.Kafka, topics.BookingOutcomes, topics.ConsumerGroup, events.BookingOutcomeHandler(locks, cfg.Log), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "topic", topics.BookingOutcomes, "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware(metrics))

	serverApp.AddWorker("booking-outcomes", func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			cfg.Log.Error("Booking outcome consumer stopped", "error", err)
		}
	})
	serverApp.OnShutdown(func() {
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
	})

	return events.NewKafkaPublisher(producer)
}
