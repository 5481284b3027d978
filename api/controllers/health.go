package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mfeldmann/storehaus-backend/api/responses"
	"github.com/mfeldmann/storehaus-backend/pkg/config"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

const envHeader = "X-Storehaus-Env"

const readyCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness of the backing stores. Nil dependencies are
// skipped so partial wiring (tests, the migrate command) stays healthy.
func HealthReady(cfg *config.Config, logg *logger.Logger, db pinger, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if db != nil {
			checks["postgres"] = "ok"
			if err := db.Ping(ctx); err != nil {
				checks["postgres"] = "unreachable"
				healthy = false
				if logg != nil {
					logg.Error(ctx, "readiness: postgres ping failed", err)
				}
			}
		}
		if cache != nil {
			checks["redis"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				checks["redis"] = "unreachable"
				healthy = false
				if logg != nil {
					logg.Error(ctx, "readiness: redis ping failed", err)
				}
			}
		}

		status := "ready"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, code, map[string]any{"status": status, "checks": checks})
	}
}
