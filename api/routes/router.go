package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltride/ebike-backend/api/controllers"
	cartcontrollers "github.com/voltride/ebike-backend/api/controllers/cart"
	ordercontrollers "github.com/voltride/ebike-backend/api/controllers/orders"
	paymentcontrollers "github.com/voltride/ebike-backend/api/controllers/payments"
	webhookcontrollers "github.com/voltride/ebike-backend/api/controllers/webhooks"
	"github.com/voltride/ebike-backend/api/middleware"
	"github.com/voltride/ebike-backend/internal/cart"
	"github.com/voltride/ebike-backend/internal/catalog"
	checkoutsvc "github.com/voltride/ebike-backend/internal/checkout"
	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/internal/shipping"
	"github.com/voltride/ebike-backend/pkg/config"
	"github.com/voltride/ebike-backend/pkg/db"
	"github.com/voltride/ebike-backend/pkg/enums"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/metrics"
	"github.com/voltride/ebike-backend/pkg/redis"
)

const webhookRequestsPerMinute = 600

// Services groups the domain services mounted by the router.
type Services struct {
	Cart      cart.Service
	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Payments  payments.Service
	Shipping  shipping.Service
	Inventory inventory.Service
	Catalog   *catalog.Repository
	PayOS     webhookcontrollers.PayOSWebhookService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	// a nil *redis.Client must not leak into the interfaces below as a typed nil
	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["database"] = dbP
	}
	var (
		idempotencyStore redis.IdempotencyStore
		limiterStore     middleware.RateLimiterStore
	)
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotencyStore = redisClient
		limiterStore = redisClient
	}

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitPerIP,
		cfg.Checkout.RateLimitPerUser,
	)
	webhookPolicy := middleware.NewRateLimitPolicy("payos_webhook", time.Minute, webhookRequestsPerMinute, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, limiterStore, logg)).Post("/webhooks/payos", webhookcontrollers.PayOSWebhook(svcs.PayOS, logg))
		r.Get("/shipping/quote", controllers.ShippingQuote(svcs.Shipping, svcs.Catalog, logg))
		r.Get("/inventory/availability", controllers.InventoryAvailability(svcs.Inventory, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore, cfg.Checkout.IdempotencyTTL, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(svcs.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(svcs.Cart, logg))
				r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(svcs.Cart, logg))
				r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(svcs.Cart, logg))
			})

			r.With(middleware.RateLimit(checkoutPolicy, limiterStore, logg)).Post("/checkout", controllers.Checkout(svcs.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(svcs.Orders, logg))
				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", ordercontrollers.Detail(svcs.Orders, logg))
					r.Post("/cancel", ordercontrollers.CancelOrder(svcs.Orders, logg))
					r.Post("/payment-link", paymentcontrollers.CreateLink(svcs.Payments, logg))
					r.Get("/payment", paymentcontrollers.Get(svcs.Payments, logg))
					r.Post("/payment/verify", paymentcontrollers.Verify(svcs.Payments, logg))
					r.Post("/payment/cancel", paymentcontrollers.CancelLink(svcs.Payments, logg))
				})
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Checkout.IdempotencyTTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.AdminList(svcs.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.AdminDetail(svcs.Orders, logg))
			r.Patch("/{orderId}/status", ordercontrollers.AdminUpdateStatus(svcs.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.CancelOrder(svcs.Orders, logg))
		})

		r.Get("/payments/pending", paymentcontrollers.AdminPending(svcs.Payments, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/low-stock", controllers.AdminLowStock(svcs.Inventory, logg))
			r.Get("/out-of-stock", controllers.AdminOutOfStock(svcs.Inventory, logg))
			r.Post("/restock", controllers.AdminRestock(svcs.Inventory, logg))
		})

		r.Route("/shipping/rates", func(r chi.Router) {
			r.Get("/", controllers.AdminListShippingTiers(svcs.Shipping, logg))
			r.Post("/", controllers.AdminCreateShippingTier(svcs.Shipping, logg))
			r.Patch("/{tierId}", controllers.AdminUpdateShippingTier(svcs.Shipping, logg))
			r.Delete("/{tierId}", controllers.AdminDeleteShippingTier(svcs.Shipping, logg))
		})
	})

	return r
}
