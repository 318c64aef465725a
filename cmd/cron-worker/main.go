package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/pawpass-backend/internal/cart"
	"github.com/angelmondragon/pawpass-backend/internal/catalogue"
	"github.com/angelmondragon/pawpass-backend/internal/cron"
	"github.com/angelmondragon/pawpass-backend/internal/orders"
	"github.com/angelmondragon/pawpass-backend/internal/vouchers"
	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/db"
	"github.com/angelmondragon/pawpass-backend/pkg/instance"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/metrics"
	"github.com/angelmondragon/pawpass-backend/pkg/migrate"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
	"github.com/angelmondragon/pawpass-backend/pkg/redis"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
	"github.com/angelmondragon/pawpass-backend/pkg/storage/factory"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "cron.dotenv_missing")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	blobStore, err := factory.New(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap blob store", err)
		os.Exit(1)
	}

	registry, err := buildJobs(cfg, logg, dbClient, redisClient, blobStore)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Schedule: cfg.Cron.Schedule,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"schedule":    cfg.Cron.Schedule,
		"instance":    instance.GetID(serviceKind),
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "cron.starting")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron.shutdown")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, blobStore storage.BlobStore) (*cron.Registry, error) {
	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)
	catalogueRepo := catalogue.NewRepository(dbClient.DB())
	voucherRepo := vouchers.NewRepository(dbClient.DB())

	artifacts, err := vouchers.NewArtifactBuilder(blobStore, cfg.App.PublicBaseURL(), logg)
	if err != nil {
		return nil, err
	}
	voucherService, err := vouchers.NewService(vouchers.ServiceParams{
		Repo:      voucherRepo,
		Tx:        dbClient,
		Outbox:    emitter,
		Artifacts: artifacts,
		Metrics:   domainMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart.TTL)
	if err != nil {
		return nil, err
	}
	carts, err := cart.NewService(cartStore, catalogueRepo)
	if err != nil {
		return nil, err
	}

	materializer, err := orders.NewMaterializer(orders.MaterializerParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Catalogue: catalogueRepo,
		Issuer:    vouchers.NewIssuer(voucherRepo, cfg.Vouchers.ValidityMonths, cfg.Vouchers.CodeRetries),
		Outbox:    emitter,
		Artifacts: artifacts,
		Carts:     carts,
		Metrics:   domainMetrics,
		Logger:    logg,
		Currency:  cfg.Stripe.Currency,
	})
	if err != nil {
		return nil, err
	}
	deadLetters, err := orders.NewDeadLetters(orders.NewFailureRepository(dbClient.DB()), materializer, cfg.Stripe.Currency, logg)
	if err != nil {
		return nil, err
	}

	expiryJob, err := cron.NewVoucherExpiryJob(logg, voucherService)
	if err != nil {
		return nil, err
	}
	retryJob, err := cron.NewMaterializationRetryJob(cron.MaterializationRetryJobParams{
		Logger:      logg,
		DeadLetters: deadLetters,
		MaxAttempts: cfg.Cron.RetryMaxAttempts,
		BatchSize:   cfg.Cron.RetryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Outbox.PruneBatchSize,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expiryJob, retryJob, retentionJob)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
