package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pawpass-backend/api/controllers"
	"github.com/angelmondragon/pawpass-backend/api/routes"
	"github.com/angelmondragon/pawpass-backend/internal/cart"
	"github.com/angelmondragon/pawpass-backend/internal/catalogue"
	"github.com/angelmondragon/pawpass-backend/internal/checkout"
	"github.com/angelmondragon/pawpass-backend/internal/orders"
	"github.com/angelmondragon/pawpass-backend/internal/users"
	"github.com/angelmondragon/pawpass-backend/internal/vouchers"
	stripewebhook "github.com/angelmondragon/pawpass-backend/internal/webhooks/stripe"
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
	"github.com/angelmondragon/pawpass-backend/pkg/stripe"
)

const (
	serviceKind     = "api"
	webhookScope    = "stripe-webhook"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "api.dotenv_missing")
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	blobStore, err := factory.New(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap blob store", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, stripeClient, blobStore)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api dependencies", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
		"blob":       cfg.Blob.Kind(),
		"instance":   instance.GetID(serviceKind),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api.starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api shutdown failed", err)
		}
	}
	logg.Info(ctx, "api.shutdown")
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	blobStore storage.BlobStore,
) (routes.Dependencies, error) {
	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	catalogueRepo := catalogue.NewRepository(dbClient.DB())
	voucherRepo := vouchers.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	artifacts, err := vouchers.NewArtifactBuilder(blobStore, cfg.App.PublicBaseURL(), logg)
	if err != nil {
		return routes.Dependencies{}, err
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
		return routes.Dependencies{}, err
	}

	cartStore, err := cart.NewRedisStore(redisClient, cfg.Cart.TTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	carts, err := cart.NewService(cartStore, catalogueRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}

	materializer, err := orders.NewMaterializer(orders.MaterializerParams{
		Repo:      ordersRepo,
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
		return routes.Dependencies{}, err
	}
	deadLetters, err := orders.NewDeadLetters(orders.NewFailureRepository(dbClient.DB()), materializer, cfg.Stripe.Currency, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:        carts,
		Sessions:     checkout.NewStripeSessions(stripeClient),
		Orders:       ordersRepo,
		Materializer: materializer,
		DeadLetters:  deadLetters,
		BaseURL:      cfg.App.PublicBaseURL(),
		Currency:     cfg.Stripe.Currency,
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Materializer: materializer,
		DeadLetters:  deadLetters,
		Users:        users.NewRepository(dbClient.DB()),
		Metrics:      domainMetrics,
		Logger:       logg,
		Currency:     cfg.Stripe.Currency,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhookScope)
	if err != nil {
		return routes.Dependencies{}, err
	}

	health := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}
	if pinger, ok := blobStore.(controllers.Pinger); ok {
		health["blob"] = pinger
	}

	return routes.Dependencies{
		Health:             health,
		Metrics:            promhttp.Handler(),
		Services:           catalogueRepo,
		Cart:               carts,
		Checkout:           checkoutService,
		Orders:             ordersRepo,
		Vouchers:           voucherService,
		StripeWebhook:      webhookService,
		StripeClient:       stripeClient,
		StripeWebhookGuard: guard,
	}, nil
}
