package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssr0016/next-rental-eq-marketplace/api/controllers"
	ordercontrollers "github.com/ssr0016/next-rental-eq-marketplace/api/controllers/orders"
	webhookcontrollers "github.com/ssr0016/next-rental-eq-marketplace/api/controllers/webhooks"
	"github.com/ssr0016/next-rental-eq-marketplace/api/middleware"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/booking"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/dashboard"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/payments"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/config"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/metrics"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/redis"
)

// redisStore covers what the HTTP layer needs from Redis.
type redisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Window, error)
	Ping(ctx context.Context) error
}

type stripeSigner interface {
	SigningSecret() string
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Dependencies are the services the router mounts.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger
	DB     controllers.Pinger
	Redis  redisStore

	Catalog      catalog.Service
	Availability availability.Service
	Booking      booking.Service
	Orders       orders.Service
	Payments     payments.Service
	Dashboard    dashboard.Service

	Stripe       stripeSigner
	WebhookGuard webhookGuard

	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	bookingPolicy := middleware.NewRateLimitPolicy(
		"booking",
		cfg.RateLimit.BookingWindow,
		cfg.RateLimit.BookingPerUser,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.Payments, deps.Stripe, deps.WebhookGuard, logg))

		r.Get("/categories", controllers.ListCategories(deps.Catalog, logg))
		r.Get("/items", controllers.ListItems(deps.Catalog, logg))
		r.Get("/items/{itemId}", controllers.GetItem(deps.Catalog, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Get("/items/{itemId}/availability", controllers.CheckAvailability(deps.Availability, logg))
			r.With(middleware.RateLimit(bookingPolicy, http.MethodPost, deps.Redis, logg)).
				Post("/bookings", controllers.CreateBooking(deps.Booking, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.Post("/{orderId}/payment-intent", ordercontrollers.PaymentIntent(deps.Payments, logg))
			})

			r.Get("/dashboard", controllers.UserDashboard(deps.Dashboard, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", controllers.ListCategories(deps.Catalog, logg))
				r.Post("/", controllers.AdminCreateCategory(deps.Catalog, logg))
				r.Patch("/{categoryId}", controllers.AdminUpdateCategory(deps.Catalog, logg))
				r.Delete("/{categoryId}", controllers.AdminDeleteCategory(deps.Catalog, logg))
			})
			r.Route("/items", func(r chi.Router) {
				r.Get("/", controllers.AdminListItems(deps.Catalog, logg))
				r.Post("/", controllers.AdminCreateItem(deps.Catalog, logg))
				r.Get("/{itemId}", controllers.GetItem(deps.Catalog, logg))
				r.Patch("/{itemId}", controllers.AdminUpdateItem(deps.Catalog, logg))
				r.Delete("/{itemId}", controllers.AdminDeleteItem(deps.Catalog, logg))
				r.Get("/{itemId}/orders", ordercontrollers.ItemOrders(deps.Orders, logg))
			})
			r.Get("/orders", ordercontrollers.AdminList(deps.Orders, logg))
			r.Get("/dashboard", controllers.AdminDashboard(deps.Dashboard, logg))
		})
	})

	return r
}
