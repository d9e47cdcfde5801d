package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

// ExtractUseCase runs the full pipeline for one queued job: normalize, run
// the structured and/or vision engines, reconcile, cache the canonical result
// and record the outcome. The cache guarantees one in-flight extraction per
// fingerprint; this usecase never calls the model for a fingerprint that is
// already being computed.
type ExtractUseCase struct {
	docs       ports.DocumentStore
	storage    ports.ObjectStorage
	normalizer ports.Normalizer
	tabular    ports.TabularParser
	selector   ports.TemplateSelector
	model      ports.VisionModel
	parser     ports.ResponseParser
	reconciler *Reconciler
	cache      ports.ResultCache
	monitor    ports.OutcomeRecorder
	usage      ports.ModelUsageRecorder
	logger     *slog.Logger

	structuredHighConfidence float64
}

func NewExtractUseCase(
	docs ports.DocumentStore,
	storage ports.ObjectStorage,
	normalizer ports.Normalizer,
	tabular ports.TabularParser,
	selector ports.TemplateSelector,
	model ports.VisionModel,
	parser ports.ResponseParser,
	reconciler *Reconciler,
	cache ports.ResultCache,
	monitor ports.OutcomeRecorder,
	usage ports.ModelUsageRecorder,
	logger *slog.Logger,
) *ExtractUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractUseCase{
		docs:                     docs,
		storage:                  storage,
		normalizer:               normalizer,
		tabular:                  tabular,
		selector:                 selector,
		model:                    model,
		parser:                   parser,
		reconciler:               reconciler,
		cache:                    cache,
		monitor:                  monitor,
		usage:                    usage,
		logger:                   logger,
		structuredHighConfidence: reconciler.cfg.StructuredHighConfidence,
	}
}

func (uc *ExtractUseCase) ProcessJob(ctx context.Context, job domain.QueueJob) error {
	start := time.Now()

	if err := uc.docs.UpdateStatus(ctx, job.DocumentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if job.Force {
		uc.cache.Invalidate(job.Fingerprint)
	}

	result, fromCache, err := uc.cache.GetOrCompute(ctx, job.Fingerprint, func(computeCtx context.Context) (domain.ExtractionResult, error) {
		return uc.runPipeline(computeCtx, job)
	})
	latency := time.Since(start)

	if err != nil {
		category := domain.ErrorCategory(err)
		uc.monitor.RecordFailure(category, latency)
		if failErr := uc.docs.UpdateStatus(ctx, job.DocumentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.docs.SaveResult(ctx, job.DocumentID, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if err := uc.docs.UpdateStatus(ctx, job.DocumentID, domain.StatusSucceeded, ""); err != nil {
		return fmt.Errorf("set status=succeeded: %w", err)
	}

	uc.monitor.RecordSuccess(result.Confidence, latency, diagnosticFor(result))
	uc.logger.Info("extraction complete",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"engine", string(result.Engine),
		"confidence", result.Confidence,
		"from_cache", fromCache,
		"duration_ms", latency.Milliseconds(),
	)
	return nil
}

// runPipeline computes the canonical result for one fingerprint. Only
// input errors and exhausted model retries escape as errors; every other
// condition degrades confidence and continues.
func (uc *ExtractUseCase) runPipeline(ctx context.Context, job domain.QueueJob) (domain.ExtractionResult, error) {
	payload, err := uc.loadPayload(ctx, job.StoragePath)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	normalized, err := uc.normalizer.Normalize(ctx, payload, job.MediaType)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	var structured *domain.StructuredOutcome
	if text := tabularText(normalized); text != "" {
		outcome := uc.tabular.Parse(text)
		if outcome.Confidence > 0 {
			structured = &outcome
		}
	}

	// A high-confidence structured result makes the model call redundant.
	if structured != nil && structured.Confidence >= uc.structuredHighConfidence {
		return uc.reconciler.Reconcile(job.Fingerprint, job.Category, structured, nil, nil), nil
	}

	vision, visionErr := uc.runVision(ctx, job, normalized)
	if visionErr != nil {
		if structured == nil {
			return domain.ExtractionResult{}, visionErr
		}
		// Model unavailable but the structured engine produced candidates:
		// degrade instead of failing the job.
		uc.logger.Warn("vision engine unavailable, continuing with structured result",
			"job_id", job.ID, "error", visionErr)
		fallback := &domain.FallbackOutcome{Reason: "vision unavailable"}
		return uc.reconciler.Reconcile(job.Fingerprint, job.Category, structured, nil, fallback), nil
	}

	return uc.reconciler.Reconcile(job.Fingerprint, job.Category, structured, vision, nil), nil
}

func (uc *ExtractUseCase) loadPayload(ctx context.Context, storagePath string) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, storagePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInput, "open source document", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInput, "read source document", err)
	}
	if len(payload) == 0 {
		return nil, domain.WrapError(domain.ErrInput, "read source document", errors.New("empty payload"))
	}
	return payload, nil
}

func (uc *ExtractUseCase) runVision(ctx context.Context, job domain.QueueJob, normalized domain.NormalizedDocument) (*domain.VisionOutcome, error) {
	pages := normalized.Pages
	if len(pages) == 0 {
		pages = []domain.NormalizedPage{{MediaType: "text/plain", Text: normalized.Text}}
	}

	response, err := uc.model.Extract(ctx, ports.ModelRequest{
		Template: uc.selector.Select(),
		Pages:    pages,
		Category: job.Category,
	})
	if err != nil {
		return nil, err
	}
	if uc.usage != nil {
		uc.usage.AddModelTokens(response.TokensUsed)
	}

	outcome := uc.parser.Parse(response.Text)
	outcome.TemplateID = response.TemplateID
	outcome.TokensUsed = response.TokensUsed
	outcome.ModelDuration = response.Duration
	return &outcome, nil
}

func tabularText(normalized domain.NormalizedDocument) string {
	if normalized.Kind == domain.NormalizedTabular {
		return normalized.Text
	}
	var parts []string
	for _, page := range normalized.Pages {
		if page.Text != "" {
			parts = append(parts, page.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func diagnosticFor(result domain.ExtractionResult) domain.Diagnostic {
	switch {
	case result.Engine == domain.EngineFallback:
		return domain.DiagnosticAmbiguous
	case result.Confidence > 0 && (len(result.SalesAmounts) > 0 || len(result.PurchaseAmounts) > 0):
		return domain.DiagnosticClean
	default:
		return domain.DiagnosticAmbiguous
	}
}
