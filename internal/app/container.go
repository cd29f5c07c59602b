// Package app wires configuration, storage and services into one container shared by the
// HTTP server and evalctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/archive"
	"github.com/spec-kit/evaluation-service/internal/assignment"
	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/lock"
	"github.com/spec-kit/evaluation-service/internal/observability"
	"github.com/spec-kit/evaluation-service/internal/persistence"
	"github.com/spec-kit/evaluation-service/internal/repository"
	"github.com/spec-kit/evaluation-service/internal/service"
	"github.com/spec-kit/evaluation-service/internal/stream"
	"github.com/spec-kit/evaluation-service/internal/worker"
)

const (
	lockKeyPrefix    = "evaluation:"
	sinkDeliveryTime = 10 * time.Second
	sinkQueueSize    = 256
)

// Container holds long lived dependencies.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Tokens     *auth.TokenManager

	Cycles       *service.CycleService
	Publications *service.PublicationService
	Hierarchy    *service.HierarchyService

	closers []func()
}

// New connects to the configured backends and builds the services. Close must be called
// even when New fails halfway, which is why a partially built container is returned with the error.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(),
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}

	if cfg.Postgres.DSN == "" {
		return c, errors.New("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return c, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg
	c.closers = append(c.closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return c, fmt.Errorf("run migrations: %w", err)
		}
	}

	locker, err := c.buildLocker(cfg, logger)
	if err != nil {
		return c, err
	}

	pool := pg.PoolHandle()
	cycleRepo := repository.NewCycleRepository(pool)
	evaluationRepo := repository.NewEvaluationRepository(pool)
	publicationRepo := repository.NewPublicationRepository(pool)
	orgRepo := repository.NewOrgRepository(pool)
	txManager := persistence.NewTxManager(pool)

	c.Publications = service.NewPublicationService(service.PublicationDependencies{
		CycleRepo:       cycleRepo,
		EvaluationRepo:  evaluationRepo,
		PublicationRepo: publicationRepo,
		OrgRepo:         orgRepo,
		TxManager:       txManager,
		Locker:          locker,
		Dispatcher:      c.Dispatcher,
		Policy:          assignment.Policy{AggregatePeersIncludeSiblings: cfg.Publication.AggregatePeersIncludeSiblings},
		TimestampPolicy: cfg.Publication.RepublishTimestampPolicy,
		Metrics:         c.Metrics,
		Logger:          logger,
	})
	c.Cycles = service.NewCycleService(service.CycleDependencies{
		CycleRepo:       cycleRepo,
		EvaluationRepo:  evaluationRepo,
		PublicationRepo: publicationRepo,
		TxManager:       txManager,
		Locker:          locker,
		Dispatcher:      c.Dispatcher,
		Logger:          logger,
	})
	c.Hierarchy = service.NewHierarchyService(orgRepo)

	if err := c.registerSinks(ctx, cfg, logger); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Container) buildLocker(cfg *config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.Publication.LockBackend != config.LockBackendRedis {
		return lock.NewLocalLocker(), nil
	}
	c.Redis = persistence.NewRedis(cfg.Redis, logger)
	c.closers = append(c.closers, c.Redis.Close)
	logger.Info("using redis publication lock", zap.Duration("ttl", cfg.Publication.LockTTL()))
	return lock.NewRedisLocker(c.Redis.Client, lockKeyPrefix, cfg.Publication.LockTTL()), nil
}

func (c *Container) registerSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	worker.StartAuditWorker(service.NewAuditService(c.Dispatcher, logger))

	var sinks []worker.NamedSink
	if cfg.Kafka.Enabled() {
		producer, err := stream.NewProducer(stream.ProducerConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		c.closers = append(c.closers, func() { _ = producer.Close() })
		sinks = append(sinks, worker.NamedSink{Name: "kafka", Sink: producer})
	}
	if cfg.Archive.Enabled() {
		archiver, err := archive.NewS3Archiver(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
		if err != nil {
			return fmt.Errorf("s3 archiver: %w", err)
		}
		sinks = append(sinks, worker.NamedSink{Name: "s3-archive", Sink: archiver})
	}
	sinkWorker := worker.RegisterSinks(c.Dispatcher, logger, sinkDeliveryTime, sinkQueueSize, sinks...)
	c.closers = append(c.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkDeliveryTime)
		defer cancel()
		if err := sinkWorker.Stop(ctx); err != nil {
			logger.Warn("event sinks not drained", zap.Error(err))
		}
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
