// gigstore es el servidor de oplogs: guarda los oplogs de cada usuario y
// reparte los cambios por long polling a los stores remotos conectados.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/config"
	"github.com/dropDatabas3/gigsync/internal/http/server"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/pump"
)

var version = "dev"

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/gigstore.yaml"), "ruta del config YAML (opcional)")
	flag.Parse()

	// .env es opcional
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.L().Fatal("config load failed", logger.Err(err))
	}

	env := "dev"
	if cfg.Log.Format == "json" {
		env = "prod"
	}
	logger.Init(logger.Config{Env: env, Level: cfg.Log.Level, ServiceName: "gigstore", Version: version})
	defer func() { _ = logger.Sync() }()
	log := logger.L()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn(".env not loaded", logger.Err(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cleanup, err := server.BuildHandler(ctx, server.Options{Config: cfg, Logger: log, Version: version})
	if err != nil {
		log.Fatal("server wiring failed", logger.Err(err))
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Warn("cleanup failed", logger.Err(err))
		}
	}()

	// el write timeout tiene que cubrir un long poll completo
	delay := config.Dur(cfg.Pump.Delay, pump.DefaultLongPollDelay)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      delay + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", logger.Err(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Dur(cfg.Server.ShutdownTimeout, 15*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", logger.Err(err))
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
