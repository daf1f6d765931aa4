// Package server arma el handler del servidor de oplogs a partir de la config.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/auth"
	"github.com/dropDatabas3/gigsync/internal/blob"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/fs"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/pg"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/redis"
	"github.com/dropDatabas3/gigsync/internal/config"
	healthctrl "github.com/dropDatabas3/gigsync/internal/http/controllers/health"
	oplogctrl "github.com/dropDatabas3/gigsync/internal/http/controllers/oplogs"
	mw "github.com/dropDatabas3/gigsync/internal/http/middlewares"
	"github.com/dropDatabas3/gigsync/internal/http/router"
	oplogsvc "github.com/dropDatabas3/gigsync/internal/http/services/oplogs"
	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/pump"
	"github.com/dropDatabas3/gigsync/internal/rate"
)

// Options son las dependencias de BuildHandler. Storage y Checker, si vienen,
// reemplazan a los que se construirían desde Config.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Storage  blob.Storage
	Checker  auth.Checker
	Client   *http.Client
	Version  string
}

// BuildHandler devuelve el handler y un cleanup que cierra el storage propio.
func BuildHandler(ctx context.Context, o Options) (http.Handler, func() error, error) {
	cfg := o.Config
	if cfg == nil {
		return nil, nil, fmt.Errorf("server: config is required")
	}
	log := logger.OrNop(o.Logger)

	cleanup := func() error { return nil }
	storage := o.Storage
	if storage == nil {
		st, err := openStorage(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		storage = st
		cleanup = st.Close
	}

	checker := o.Checker
	if checker == nil {
		switch cfg.Auth.Mode {
		case "table":
			client := o.Client
			if client == nil {
				client = &http.Client{}
			}
			checker = auth.NewTableChecker(cfg.Auth.TableURL, client,
				config.Dur(cfg.Auth.CheckTimeout, 10*time.Second), log)
		default:
			log.Warn("auth disabled: every store_token is accepted")
			checker = auth.AllowAll{}
		}
	}

	reg := o.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if err := metrics.Register(reg); err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	p := pump.New(
		pump.WithDelay(config.Dur(cfg.Pump.Delay, pump.DefaultLongPollDelay)),
		pump.WithTimeout(config.Dur(cfg.Pump.Timeout, pump.DefaultLongPollTimeout)),
		pump.WithLogger(log),
	)
	service := oplogsvc.NewService(oplogsvc.Deps{Storage: storage, Pump: p, Checker: checker, Logger: log})

	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Dur(cfg.Rate.Window, time.Minute)
		if cfg.Rate.Backend == "redis" {
			rc := goredis.NewClient(&goredis.Options{Addr: cfg.Storage.Redis.Addr, DB: cfg.Storage.Redis.DB})
			limiter = rate.NewRedisLimiter(rc, cfg.Storage.Redis.Prefix+":rl:", cfg.Rate.MaxRequests, window)
			prev := cleanup
			cleanup = func() error {
				_ = rc.Close()
				return prev()
			}
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, window)
		}
	}

	h := router.New(router.Deps{
		BasePath:       cfg.Server.BasePath,
		CORSOrigins:    cfg.Server.CORSAllowedOrigins,
		Logger:         log.Named("http"),
		Checker:        checker,
		RateLimiter:    limiter,
		Metrics:        mw.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Oplogs:         oplogctrl.NewController(service),
		Health:         healthctrl.NewController(storage, cfg.Storage.Driver, o.Version),
	})

	log.Info("oplog server ready",
		logger.Component("server"),
		zap.String("driver", cfg.Storage.Driver),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.String("base_path", cfg.Server.BasePath),
	)
	return h, cleanup, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (blob.Storage, error) {
	bc := blob.Config{Driver: cfg.Storage.Driver, Root: cfg.Storage.Root, DSN: cfg.Storage.DSN}
	if cfg.Storage.Driver == "redis" {
		bc.DSN = cfg.Storage.Redis.Addr
		bc.DB = cfg.Storage.Redis.DB
		bc.Prefix = cfg.Storage.Redis.Prefix
	}
	st, err := blob.Open(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("server: open storage: %w", err)
	}
	return st, nil
}
