package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventgatehq/eventgate-backend/api/responses"
	"github.com/eventgatehq/eventgate-backend/api/routes"
	"github.com/eventgatehq/eventgate-backend/internal/destinations"
	"github.com/eventgatehq/eventgate-backend/internal/events"
	"github.com/eventgatehq/eventgate-backend/internal/forward"
	routesvc "github.com/eventgatehq/eventgate-backend/internal/routes"
	"github.com/eventgatehq/eventgate-backend/internal/routing"
	"github.com/eventgatehq/eventgate-backend/internal/transformations"
	stripewebhook "github.com/eventgatehq/eventgate-backend/internal/webhooks/stripe"
	"github.com/eventgatehq/eventgate-backend/pkg/cache"
	"github.com/eventgatehq/eventgate-backend/pkg/config"
	"github.com/eventgatehq/eventgate-backend/pkg/crypto"
	"github.com/eventgatehq/eventgate-backend/pkg/db"
	"github.com/eventgatehq/eventgate-backend/pkg/hub"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/metrics"
	"github.com/eventgatehq/eventgate-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	responses.SetDevMode(cfg.App.IsDev())

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

	cacheClient := cache.Disabled()
	if cfg.Redis.Enabled() {
		cacheClient, err = cache.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
	}
	defer func() {
		if err := cacheClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cipher, err := crypto.New(cfg.Crypto.MasterKey)
	if err != nil {
		logg.Error(context.Background(), "failed to derive signing cipher", err)
		os.Exit(1)
	}
	if !cipher.Ready() {
		logg.Warn(context.Background(), "no master key configured, deliveries go out unsigned")
	}

	registry := destinations.NewRegistry(logg)
	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)

	forwarder, err := forward.New(registry, cipher, cfg.Forward, deliveryMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create forwarder", err)
		os.Exit(1)
	}

	destinationRepo := destinations.NewRepository(dbClient.DB())
	transformationRepo := transformations.NewRepository(dbClient.DB())
	routeRepo := routesvc.NewRepository(dbClient.DB())
	eventRepo := events.NewRepository(dbClient.DB())
	providerEventRepo := stripewebhook.NewRepository(dbClient.DB())

	router, err := routing.NewRouter(routing.NewRepository(dbClient.DB()), forwarder, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create event router", err)
		os.Exit(1)
	}

	destinationService, err := destinations.NewService(destinations.ServiceParams{
		Repo:      destinationRepo,
		Registry:  registry,
		Cipher:    cipher,
		Sender:    forwarder,
		Refresher: router,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create destination service", err)
		os.Exit(1)
	}

	transformationService, err := transformations.NewService(transformations.ServiceParams{
		Repo:      transformationRepo,
		Refresher: router,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transformation service", err)
		os.Exit(1)
	}

	routeService, err := routesvc.NewService(routesvc.ServiceParams{
		Repo:      routeRepo,
		Refresher: router,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create route service", err)
		os.Exit(1)
	}

	eventService, err := events.NewService(events.ServiceParams{
		Repo:      eventRepo,
		Router:    router,
		Forwarder: forwarder,
		Hub:       hub.New(0),
		Metrics:   deliveryMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create event service", err)
		os.Exit(1)
	}

	stripeReceiver, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:              providerEventRepo,
		TransactionRunner: dbClient,
		Ingester:          eventService,
		WebhookSecret:     cfg.Stripe.WebhookSecret,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	loaded, err := destinations.LoadAll(context.Background(), destinationRepo, registry, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to load destinations", err)
		os.Exit(1)
	}
	if err := router.Initialize(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to compile routes", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"destinations": loaded,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, cacheClient, promhttp.Handler(), routes.Services{
			Events:          eventService,
			Destinations:    destinationService,
			Transformations: transformationService,
			Routes:          routeService,
			StripeReceiver:  stripeReceiver,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
