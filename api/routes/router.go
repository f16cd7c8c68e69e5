package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pastrypickup-backend/api/controllers"
	"github.com/angelmondragon/pastrypickup-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/pastrypickup-backend/internal/checkout"
	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/redis"
)

// Params holds everything the HTTP surface is wired to.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Loyalty  loyalty.Service
	Metrics  http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotent := func(time.Duration) func(http.Handler) http.Handler { return passthrough }
	throttled := passthrough
	readiness := map[string]controllers.Pinger{}
	if p.DB != nil {
		readiness["database"] = p.DB
	}
	if p.Redis != nil {
		idempotent = func(ttl time.Duration) func(http.Handler) http.Handler {
			return middleware.Idempotency(p.Redis, ttl, logg)
		}
		throttled = middleware.RateLimit(middleware.RateLimitPolicy{
			Name:     "checkout",
			Window:   cfg.Checkout.RateLimitWindow,
			PerIP:    cfg.Checkout.RateLimitPerIP,
			PerEmail: cfg.Checkout.RateLimitPerEmail,
		}, p.Redis, logg)
		readiness["redis"] = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.With(throttled, idempotent(middleware.CriticalReplayTTL)).Post("/checkout", controllers.Checkout(p.Checkout, logg))
			r.Get("/orders/by-number/{number}", controllers.OrderByNumber(p.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/orders", controllers.OrdersList(p.Orders, logg))
			r.Get("/orders/{orderId}", controllers.OrderDetail(p.Orders, logg))
			r.With(idempotent(middleware.CriticalReplayTTL)).Post("/orders/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
			r.With(idempotent(middleware.ReplayTTL)).Put("/orders/{orderId}/items", controllers.OrderModify(p.Orders, logg))
			r.Get("/loyalty", controllers.LoyaltyAccount(p.Loyalty, logg))
			r.Get("/loyalty/transactions", controllers.LoyaltyTransactions(p.Loyalty, logg))
			r.With(idempotent(middleware.ReplayTTL)).Post("/loyalty/redeem", controllers.LoyaltyRedeem(p.Loyalty, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Get("/orders/{orderId}", controllers.OrderDetail(p.Orders, logg))
		r.With(idempotent(middleware.ReplayTTL)).Post("/orders/{orderId}/advance", controllers.AdminAdvanceOrder(p.Orders, logg))
		r.With(idempotent(middleware.CriticalReplayTTL)).Post("/orders/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
		r.With(idempotent(middleware.ReplayTTL)).Put("/orders/{orderId}/items", controllers.OrderModify(p.Orders, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
