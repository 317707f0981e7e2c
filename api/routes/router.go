package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmcart/farmcart-backend/api/controllers"
	webhookcontrollers "github.com/farmcart/farmcart-backend/api/controllers/webhooks"
	"github.com/farmcart/farmcart-backend/api/middleware"
	"github.com/farmcart/farmcart-backend/internal/delivery"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/internal/settlement"
	"github.com/farmcart/farmcart-backend/pkg/config"
	"github.com/farmcart/farmcart-backend/pkg/db"
	"github.com/farmcart/farmcart-backend/pkg/identity"
	"github.com/farmcart/farmcart-backend/pkg/logger"
	pkgredis "github.com/farmcart/farmcart-backend/pkg/redis"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *pkgredis.Client
	Resolver identity.Resolver
	Registry prometheus.Gatherer

	Orders     orders.Service
	Settlement settlement.Service
	Refunds    refunds.Service
	Delivery   delivery.Service
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

	probes := []controllers.Pinger{}
	if deps.DB != nil {
		probes = append(probes, deps.DB)
	}
	if deps.Redis != nil {
		probes = append(probes, deps.Redis)
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, probes...))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// A typed-nil *redis.Client must not leak into the middleware
	// interfaces, or their nil checks stop working.
	var limiterStore interface {
		IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	}
	var idemStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		limiterStore = deps.Redis
		idemStore = deps.Redis
	}

	webhookPolicy := middleware.NewRateLimitPolicy("webhook", time.Minute, 120)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, limiterStore, logg)).
			Post("/delivery", webhookcontrollers.DeliveryWebhook(deps.Delivery, logg))
	})

	// Gateway return legs land here with the buyer's browser, so no auth
	// header is available. The settlement service re-checks order ownership
	// against the session instead.
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Get("/{provider}/approve", controllers.ApprovePayment(deps.Settlement, logg))
		r.Get("/{provider}/callback", controllers.ApprovePayment(deps.Settlement, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Resolver, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Patch("/{orderID}/status", controllers.TransitionOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Refunds, logg))
		})

		r.Post("/payments/{provider}/prepare", controllers.PreparePayment(deps.Settlement, logg))
	})

	return r
}
