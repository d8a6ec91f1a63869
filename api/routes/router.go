package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freshkart/freshkart-backend/api/controllers"
	webhookcontrollers "github.com/freshkart/freshkart-backend/api/controllers/webhooks"
	"github.com/freshkart/freshkart-backend/api/middleware"
	checkoutsvc "github.com/freshkart/freshkart-backend/internal/checkout"
	deliverysvc "github.com/freshkart/freshkart-backend/internal/delivery"
	ordersvc "github.com/freshkart/freshkart-backend/internal/orders"
	paymentsvc "github.com/freshkart/freshkart-backend/internal/payments"
	productsvc "github.com/freshkart/freshkart-backend/internal/products"
	"github.com/freshkart/freshkart-backend/pkg/config"
	pkgdb "github.com/freshkart/freshkart-backend/pkg/db"
	"github.com/freshkart/freshkart-backend/pkg/logger"
	"github.com/freshkart/freshkart-backend/pkg/metrics"
	pkgredis "github.com/freshkart/freshkart-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DBPinger     pkgdb.Pinger
	Redis        *pkgredis.Client
	Products     productsvc.Repository
	Delivery     deliverysvc.Service
	Checkout     checkoutsvc.Service
	Orders       ordersvc.Service
	Reconciler   paymentsvc.Reconciler
	EventGuard   *paymentsvc.EventGuard
	OrderMetrics *metrics.OrderMetrics
	Registry     *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DBPinger, deps.Redis, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// Gateways authenticate with signatures, not bearer tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Reconciler, cfg.Stripe.WebhookSecret, deps.EventGuard, deps.OrderMetrics, logg))
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(deps.Reconciler, cfg.Razorpay.WebhookSecret, deps.EventGuard, deps.OrderMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(deps.Products, logg))
		r.Get("/products/{productID}", controllers.GetProduct(deps.Products, logg))
		r.Get("/delivery/slots", controllers.DeliverySlots(deps.Delivery, logg))
		r.Post("/delivery/quote", controllers.DeliveryQuote(deps.Delivery, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

			r.Post("/orders", controllers.CreateOrder(deps.Checkout, logg))
			r.Get("/orders", controllers.ListMyOrders(deps.Orders, logg))
			r.Get("/orders/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/orders/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/orders/{orderID}/payment/confirm", controllers.ConfirmPayment(deps.Reconciler, logg))

			r.Route("/admin/orders", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
				r.Patch("/{orderID}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			})
		})
	})

	return r
}

func idempotencyStore(client *pkgredis.Client) pkgredis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
