package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	httpadapter "github.com/vatsight/pipeline/internal/adapters/http"
	"github.com/vatsight/pipeline/internal/config"
	"github.com/vatsight/pipeline/internal/core/ports"
	"github.com/vatsight/pipeline/internal/core/usecase"
	"github.com/vatsight/pipeline/internal/infrastructure/cache"
	"github.com/vatsight/pipeline/internal/infrastructure/normalize"
	natsqueue "github.com/vatsight/pipeline/internal/infrastructure/queue/nats"
	"github.com/vatsight/pipeline/internal/infrastructure/repository/postgres"
	"github.com/vatsight/pipeline/internal/infrastructure/resilience"
	"github.com/vatsight/pipeline/internal/infrastructure/respparse"
	"github.com/vatsight/pipeline/internal/infrastructure/storage/localfs"
	"github.com/vatsight/pipeline/internal/infrastructure/storage/memory"
	"github.com/vatsight/pipeline/internal/infrastructure/tabular"
	"github.com/vatsight/pipeline/internal/infrastructure/vision"
	"github.com/vatsight/pipeline/internal/learning"
	"github.com/vatsight/pipeline/internal/observability/metrics"
	"github.com/vatsight/pipeline/internal/observability/monitor"
)

// App wires the pipeline explicitly: storage, cache, queue, engines,
// usecases. Both binaries share this composition root. Document and feedback
// state lives in Postgres so the api and worker processes see one world;
// feedback events reach the worker's learning loop over the queue.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics

	DB            *sql.DB
	Docs          ports.DocumentStore
	FeedbackStore ports.FeedbackStore
	Cache         *cache.Cache
	Queue         *natsqueue.Queue
	Monitor       *monitor.Monitor
	Learning      *learning.Loop

	Submit   *usecase.SubmitUseCase
	Extract  *usecase.ExtractUseCase
	Feedback *usecase.FeedbackUseCase

	Router *httpadapter.Router
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	db, err := postgres.OpenDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	docs := postgres.NewDocumentRepository(db)
	if err := docs.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure document schema: %w", err)
	}
	feedbackStore := postgres.NewFeedbackRepository(db)
	if err := feedbackStore.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure feedback schema: %w", err)
	}

	resultCache := cache.New(cache.Config{
		MaxEntries:    cfg.CacheMaxEntries,
		TTL:           time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.CacheSweepSeconds) * time.Second,
		OnEvent: func(event string) {
			pipelineMetrics.ObserveCacheEvent(service, event)
		},
	})

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		FeedbackSubject:    cfg.NATSFeedbackSubject,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultPolicy()),
	})
	if err != nil {
		resultCache.Close()
		db.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	pipelineMonitor := monitor.New(time.Duration(cfg.MonitorWindowMinutes) * time.Minute)

	learningLoop := learning.NewLoop(learning.Config{
		EvalInterval:    time.Duration(cfg.LearningEvalMinutes) * time.Minute,
		MinSamples:      cfg.LearningMinSamples,
		PromotionMargin: cfg.LearningPromotionMargin,
	}, vision.DefaultTemplates(), feedbackStore, pipelineMonitor, logger)

	visionClient := vision.New(vision.Options{
		BaseURL:        cfg.ModelURL,
		APIKey:         cfg.ModelAPIKey,
		Model:          cfg.ModelName,
		RequestTimeout: time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
		RequestsPerSec: cfg.ModelRequestsPerSec,
	})

	reconciler := usecase.NewReconciler(usecase.ReconcilerConfig{
		StructuredHighConfidence: cfg.StructuredHighConfidence,
		AgreementTolerance:       cfg.AgreementTolerance,
		AgreementBoost:           cfg.AgreementBoost,
		DisagreementFloor:        cfg.DisagreementFloor,
		CompliantThreshold:       cfg.CompliantThreshold,
	})

	submit := usecase.NewSubmitUseCase(docs, storage, resultCache, queue, logger)
	extract := usecase.NewExtractUseCase(
		docs,
		storage,
		normalize.New(),
		tabular.New(tabular.Config{GuessConfidence: cfg.StructuredGuessConfidence}),
		learningLoop,
		visionClient,
		respparse.New(respparse.Config{CleanConfidence: cfg.VisionCleanConfidence}),
		reconciler,
		resultCache,
		pipelineMonitor,
		pipelineMetrics,
		logger,
	)
	feedback := usecase.NewFeedbackUseCase(
		docs,
		feedbackStore,
		memory.StaticIdentity{UserID: cfg.FeedbackUserID},
		natsqueue.Learner{Queue: queue, Logger: logger},
		logger,
	)

	router := httpadapter.NewRouter(submit, docs, feedback, pipelineMonitor, resultCache, logger)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       pipelineMetrics,
		DB:            db,
		Docs:          docs,
		FeedbackStore: feedbackStore,
		Cache:         resultCache,
		Queue:         queue,
		Monitor:       pipelineMonitor,
		Learning:      learningLoop,
		Submit:        submit,
		Extract:       extract,
		Feedback:      feedback,
		Router:        router,
	}, nil
}

func (a *App) Close() {
	a.Queue.Close()
	a.Cache.Close()
	if a.DB != nil {
		a.DB.Close()
	}
}
