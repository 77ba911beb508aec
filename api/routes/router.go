package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/square"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// RedisStore is the redis surface the HTTP layer uses.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// PaymentPoller reconciles a pending order on demand.
type PaymentPoller interface {
	Poll(ctx context.Context, orderNumber string) (reconciliation.Result, error)
}

// Dependencies are the services the router dispatches to. Processor entries
// are optional; a webhook route is mounted only when its processor is configured.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
	Metrics  *metrics.ReconciliationMetrics

	Checkout checkout.Service
	Orders   orders.Service
	Engine   PaymentPoller

	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
	StripeGuard   *webhooks.EventGuard

	SquareClient  *square.Client
	SquareWebhook *squarewebhook.Service
	SquareGuard   *webhooks.EventGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.Checkout.ReturnBaseURL),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessDeps(deps), logg))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.StripeClient != nil && deps.StripeWebhook != nil && deps.StripeGuard != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeGuard, deps.Metrics, logg))
		}
		if deps.SquareClient != nil && deps.SquareWebhook != nil && deps.SquareGuard != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareWebhook, deps.SquareClient, deps.SquareGuard, deps.Metrics, logg))
		}
	})

	r.With(
		middleware.RateLimit(checkoutPolicy, rateLimiter(deps), logg),
		middleware.Idempotency(idempotencyStore(deps), cfg.Eventing.RequestIdempotencyTTL, logg),
	).Post("/api/v1/orders", ordercontrollers.Create(deps.Checkout, logg))
	r.Get("/api/v1/orders/{orderNumber}", ordercontrollers.Get(deps.Orders, logg))
	r.Get("/api/v1/orders/{orderNumber}/payment-status", ordercontrollers.PaymentStatus(deps.Engine, logg))

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(pkgauth.RoleAdmin, logg))
		r.Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
	})

	return r
}

func readinessDeps(deps Dependencies) map[string]controllers.Pinger {
	out := map[string]controllers.Pinger{}
	if deps.DB != nil {
		out["db"] = deps.DB
	}
	if deps.Redis != nil {
		out["redis"] = deps.Redis
	}
	return out
}

// The middlewares treat a nil store as disabled; an interface holding a nil
// pointer would not compare equal to nil, so unwrap explicitly.
func idempotencyStore(deps Dependencies) pkgredis.IdempotencyStore {
	if deps.Redis == nil {
		return nil
	}
	return deps.Redis
}

func rateLimiter(deps Dependencies) interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
} {
	if deps.Redis == nil {
		return nil
	}
	return deps.Redis
}
