package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssr0016/next-rental-eq-marketplace/api/routes"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/booking"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/dashboard"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/payments"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/config"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/instance"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/metrics"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/migrate"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/redis"
	pkgstripe "github.com/ssr0016/next-rental-eq-marketplace/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Instance:    instance.ID("local"),
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid booking time zone", err)
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	calculator := availability.NewCalculator(availability.NewRepository(dbClient.DB()))
	ordersRepo := orders.NewRepository(dbClient.DB())

	catalogService, err := catalog.NewService(catalogRepo, dbClient, calculator, time.Now, loc)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	availabilityService, err := availability.NewService(catalogRepo, calculator)
	if err != nil {
		logg.Error(context.Background(), "failed to create availability service", err)
		os.Exit(1)
	}

	locker, err := newItemLocker(cfg.Booking, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create booking locker", err)
		os.Exit(1)
	}

	bookingService, err := booking.NewService(booking.ServiceParams{
		Tx:       dbClient,
		Locker:   locker,
		Items:    catalogRepo,
		Orders:   ordersRepo,
		Calc:     calculator,
		Outbox:   outboxService,
		Metrics:  bookingMetrics,
		Logger:   logg,
		Location: loc,
		MaxDays:  cfg.Booking.MaxDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Logger:   logg,
		Metrics:  bookingMetrics,
		Location: loc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Payments: payments.NewRepository(dbClient.DB()),
		Orders:   ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Intents:  payments.NewStripeIntentClient(stripeClient),
		Currency: stripeClient.Currency(),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewWebhookGuard(redisClient, cfg.Eventing.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	dashboardService, err := dashboard.NewService(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create dashboard service", err)
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
		"env":    cfg.App.Env,
		"addr":   addr,
		"stripe": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Catalog:      catalogService,
			Availability: availabilityService,
			Booking:      bookingService,
			Orders:       ordersService,
			Payments:     paymentsService,
			Dashboard:    dashboardService,
			Stripe:       stripeClient,
			WebhookGuard: webhookGuard,
			HTTPMetrics:  metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
		return
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

func newItemLocker(cfg config.BookingConfig, redisClient *redis.Client) (booking.ItemLocker, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.LockBackend), config.LockBackendLocal) {
		return booking.NewLocalItemLocker(cfg.LockWait), nil
	}
	return booking.NewRedisItemLocker(redisClient, cfg.LockTTL, cfg.LockWait, cfg.LockPollInterval)
}
