package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/freshkart/freshkart-backend/api/routes"
	"github.com/freshkart/freshkart-backend/internal/cart"
	"github.com/freshkart/freshkart-backend/internal/checkout"
	"github.com/freshkart/freshkart-backend/internal/delivery"
	"github.com/freshkart/freshkart-backend/internal/inventory"
	"github.com/freshkart/freshkart-backend/internal/orders"
	"github.com/freshkart/freshkart-backend/internal/payments"
	"github.com/freshkart/freshkart-backend/internal/products"
	"github.com/freshkart/freshkart-backend/pkg/config"
	"github.com/freshkart/freshkart-backend/pkg/db"
	"github.com/freshkart/freshkart-backend/pkg/geocode"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/metrics"
	"github.com/freshkart/freshkart-backend/pkg/migrate"
	"github.com/freshkart/freshkart-backend/pkg/redis"
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

	var geocoder delivery.Geocoder
	if cfg.Geocoding.APIKey != "" {
		client, err := geocode.NewClient(cfg.Geocoding.APIKey, cfg.Geocoding.Timeout)
		if err != nil {
			logg.Error(context.Background(), "failed to create geocoding client", err)
			os.Exit(1)
		}
		geocoder = client
	} else {
		logg.Warn(context.Background(), "geocoding api key not set, delivery quotes fall back to the minimum fee")
	}

	registry := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)

	ordersRepo := orders.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	productsRepo := products.NewRepository(dbClient.DB())
	ledger := inventory.NewLedger()

	deliveryService := delivery.NewService(cfg.Delivery, geocoder, logg)

	ordersService, err := orders.NewService(ordersRepo, dbClient, ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(dbClient, ordersRepo, cartRepo, ledger, deliveryService, orderMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	reconciler, err := payments.NewReconciler(ordersRepo, dbClient, ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconciler", err)
		os.Exit(1)
	}

	eventGuard := payments.NewEventGuard(redisClient, 48*time.Hour)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DBPinger:     dbClient,
			Redis:        redisClient,
			Products:     productsRepo,
			Delivery:     deliveryService,
			Checkout:     checkoutService,
			Orders:       ordersService,
			Reconciler:   reconciler,
			EventGuard:   eventGuard,
			OrderMetrics: orderMetrics,
			Registry:     registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
