package middlewares

import (
	"math"
	"net/http"
	"strconv"

	httperrors "github.com/dropDatabas3/gigsync/internal/http/errors"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/rate"
)

// ErrRateLimited se devuelve con 429 y Retry-After.
var ErrRateLimited = httperrors.New(http.StatusTooManyRequests, "UserError:RateLimited", "Demasiados pushes, reintentar más tarde.")

// WithRateLimit limita por user id (va después de WithStoreToken). Si el
// limiter falla, el request pasa.
func WithRateLimit(l rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strconv.FormatInt(GetUserID(r.Context()), 10)
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				httperrors.WriteError(w, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
