package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vatsight/pipeline/internal/bootstrap"
	"github.com/vatsight/pipeline/internal/config"
	"github.com/vatsight/pipeline/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("vat-api", "info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("vat-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "vat-api", logger)
	if err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/", app.Router.Handler())
	mux.Handle("/metrics", app.Metrics.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("api stopped")
}
