// Package router arma el árbol de rutas chi del servidor de oplogs.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/auth"
	healthctrl "github.com/dropDatabas3/gigsync/internal/http/controllers/health"
	oplogctrl "github.com/dropDatabas3/gigsync/internal/http/controllers/oplogs"
	httperrors "github.com/dropDatabas3/gigsync/internal/http/errors"
	mw "github.com/dropDatabas3/gigsync/internal/http/middlewares"
	"github.com/dropDatabas3/gigsync/internal/rate"
)

// Deps contiene las dependencias del router.
type Deps struct {
	BasePath       string
	CORSOrigins    []string
	Logger         *zap.Logger
	Checker        auth.Checker
	RateLimiter    rate.Limiter
	Metrics        *mw.HTTPMetrics
	MetricsHandler http.Handler
	Oplogs         *oplogctrl.Controller
	Health         *healthctrl.Controller
}

// New devuelve el handler raíz:
//
//	GET    {base}/user/{user_id}/oplog?type=&path=&store_token=
//	POST   {base}/user/{user_id}/oplog?type=&path=&store_token=
//	GET    {base}/user/{user_id}/oplog/stream?store_token=&reg_id=
//	DELETE {base}/user/{user_id}/session/{store_token}
//	GET    /readyz, /metrics
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithCORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(mw.WithMetrics(d.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// infra, sin logging por request
	if d.Health != nil {
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	checker := d.Checker
	if checker == nil {
		checker = auth.AllowAll{}
	}

	api := func(r chi.Router) {
		r.Use(mw.WithLogging(d.Logger))
		r.Route("/user/{user_id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(mw.WithStoreToken(checker))
				r.Get("/oplog", d.Oplogs.Get)
				var limit mw.Middleware
				if d.RateLimiter != nil {
					limit = mw.WithRateLimit(d.RateLimiter)
				}
				r.Method(http.MethodPost, "/oplog", mw.Chain(http.HandlerFunc(d.Oplogs.Post), limit))
				r.Get("/oplog/stream", d.Oplogs.Stream)
			})
			r.Delete("/session/{store_token}", d.Oplogs.RevokeSession)
		})
	}

	base := "/" + strings.Trim(d.BasePath, "/")
	if base == "/" {
		r.Group(api)
	} else {
		r.Route(base, api)
	}
	return r
}
