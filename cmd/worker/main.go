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
	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/infrastructure/queue/batch"
	"github.com/vatsight/pipeline/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("vat-worker", "info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("vat-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "vat-worker", logger)
	if err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The learning loop lives in the worker, next to template selection.
	// Feedback recorded by the API arrives over the feedback subject.
	go app.Learning.Run(ctx)
	if err := app.Queue.SubscribeFeedback(ctx, app.Learning.Submit); err != nil {
		logger.Error("subscribe feedback", "error", err)
		app.Close()
		os.Exit(1)
	}

	batchQueue := batch.New(batch.Config{
		MaxBatchSize: cfg.BatchMaxSize,
		MaxWait:      time.Duration(cfg.BatchMaxWaitMs) * time.Millisecond,
		Workers:      cfg.MaxConcurrentUploads,
	}, func(jobCtx context.Context, job domain.QueueJob) error {
		app.Metrics.StartExtraction()
		start := time.Now()
		err := app.Extract.ProcessJob(jobCtx, job)
		engine := "pipeline"
		if result, resultErr := app.Docs.GetResult(jobCtx, job.DocumentID); resultErr == nil {
			engine = string(result.Engine)
		}
		app.Metrics.FinishExtraction("vat-worker", engine, time.Since(start), err)
		if err != nil {
			app.Metrics.ObserveError("vat-worker", domain.ErrorCategory(err))
		}
		return err
	})
	defer batchQueue.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	logger.Info("worker consuming", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeExtractionJobs(ctx, func(_ context.Context, job domain.QueueJob) error {
		return batchQueue.Submit(job)
	})
	if err != nil {
		logger.Error("subscription ended", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown", "error", err)
	}
	app.Learning.Wait()
	logger.Info("worker stopped")
}
