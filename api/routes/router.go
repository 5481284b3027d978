package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfeldmann/storehaus-backend/api/controllers"
	"github.com/mfeldmann/storehaus-backend/api/middleware"
	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/internal/pricing"
	"github.com/mfeldmann/storehaus-backend/pkg/config"
	"github.com/mfeldmann/storehaus-backend/pkg/db"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
	"github.com/mfeldmann/storehaus-backend/pkg/redis"
)

// RateLimiter is the fixed-window counter backing the per-IP limit.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams carry the dependencies of the HTTP surface.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     redis.Pinger
	Limiter   RateLimiter
	Metrics   prometheus.Gatherer
	Inventory inventory.Service
	Pricing   pricing.Service
	Audit     audit.Recorder
}

// NewRouter assembles the diagnostics and read-only API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(params.Config))
		r.Get("/ready", controllers.HealthReady(params.Config, params.Logger, params.DB, params.Redis))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.Limiter != nil {
			r.Use(middleware.RateLimit(params.Limiter, "api", params.Config.RateLimit.Limit, params.Config.RateLimit.Window, params.Logger))
		}
		if params.Pricing != nil {
			r.Post("/pricing/explain", controllers.PricingExplain(params.Pricing, params.Logger))
		}
		if params.Inventory != nil {
			r.Get("/stock/availability", controllers.StockAvailability(params.Inventory, params.Logger))
		}
		if params.Audit != nil {
			r.Get("/stock/audit", controllers.StockAuditTrail(params.Audit, params.Logger))
		}
	})

	return r
}
