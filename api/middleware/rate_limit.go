package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/mfeldmann/storehaus-backend/api/responses"
	pkgerrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

type rateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit applies a fixed-window per-IP limit. The limiter fails open when
// the store is unavailable.
func RateLimit(store rateLimitStore, scope string, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			allowed, _, err := store.FixedWindowAllow(r.Context(), scope+":"+host, limit, window)
			if err != nil {
				if logg != nil {
					logg.Error(r.Context(), "rate limit check failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
