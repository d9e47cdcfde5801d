package learning

import (
	"context"
	"log/slog"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

type Config struct {
	// EvalInterval is how often the background A/B comparison runs.
	EvalInterval time.Duration
	// MinSamples is the least feedback a template needs before it competes.
	MinSamples int
	// PromotionMargin is the accuracy lead required for a promotion.
	PromotionMargin float64
	QueueSize       int
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		EvalInterval:    10 * time.Minute,
		MinSamples:      5,
		PromotionMargin: 0.1,
		QueueSize:       256,
		Seed:            time.Now().UnixNano(),
	}
}

// Loop is the learning feedback loop. It consumes feedback records off a
// buffered channel so Submit never blocks the request path, adjusts template
// selection weights per record, and periodically runs an A/B comparison that
// promotes the measurably better variant.
type Loop struct {
	cfg      Config
	table    *weightTable
	feedback ports.FeedbackStore
	monitor  ports.MonitorReader
	logger   *slog.Logger

	records chan domain.FeedbackRecord
	done    chan struct{}
}

func NewLoop(cfg Config, templates []domain.PromptTemplate, feedback ports.FeedbackStore, monitor ports.MonitorReader, logger *slog.Logger) *Loop {
	def := DefaultConfig()
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = def.EvalInterval
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.PromotionMargin <= 0 {
		cfg.PromotionMargin = def.PromotionMargin
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:      cfg,
		table:    newWeightTable(templates, cfg.Seed),
		feedback: feedback,
		monitor:  monitor,
		logger:   logger,
		records:  make(chan domain.FeedbackRecord, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Select implements ports.TemplateSelector for the vision client.
func (l *Loop) Select() domain.PromptTemplate {
	return l.table.Select()
}

// Submit implements ports.FeedbackLearner. It never blocks: if the buffer is
// full the record is dropped and only the weight table misses one signal.
func (l *Loop) Submit(record domain.FeedbackRecord) {
	select {
	case l.records <- record:
	default:
		l.logger.Warn("learning queue full, dropping feedback record", "record_id", record.ID)
	}
}

// Run consumes records and runs evaluations until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return
		case record := <-l.records:
			l.consume(record)
		case <-ticker.C:
			l.runEvaluation(ctx)
		}
	}
}

// Wait blocks until Run has returned.
func (l *Loop) Wait() {
	<-l.done
}

func (l *Loop) consume(record domain.FeedbackRecord) {
	templateID := record.Original.TemplateID
	if templateID == "" {
		return
	}
	l.table.apply(templateID, record.Kind, record.ID)
	l.logger.Debug("applied feedback to template weights",
		"template_id", templateID,
		"kind", string(record.Kind),
		"weight", l.table.weight(templateID),
	)
}

func (l *Loop) drain() {
	for {
		select {
		case record := <-l.records:
			l.consume(record)
		default:
			return
		}
	}
}

func (l *Loop) runEvaluation(ctx context.Context) {
	if l.monitor != nil {
		snap := l.monitor.Snapshot()
		if snap.TotalAttempts > 0 && snap.SuccessRate < 0.5 {
			l.logger.Warn("extraction success rate regressed",
				"success_rate", snap.SuccessRate,
				"attempts", snap.TotalAttempts,
			)
		}
	}

	result, promoted := l.table.evaluate(l.cfg.MinSamples, l.cfg.PromotionMargin)
	if !promoted {
		return
	}

	l.logger.Info("promoted prompt template",
		"template_id", result.templateID,
		"accuracy", result.accuracy,
		"samples", result.samples,
	)
	if l.feedback != nil && len(result.recordIDs) > 0 {
		if err := l.feedback.MarkImprovement(ctx, result.recordIDs); err != nil {
			l.logger.Error("mark improvement records", "error", err)
		}
	}
}
