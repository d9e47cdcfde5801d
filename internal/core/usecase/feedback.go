package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
)

// FeedbackUseCase accepts user corrections, stores them as immutable records
// and hands them to the learning loop without blocking the request.
type FeedbackUseCase struct {
	docs     ports.DocumentStore
	feedback ports.FeedbackStore
	identity ports.Identity
	learner  ports.FeedbackLearner
	logger   *slog.Logger
}

func NewFeedbackUseCase(
	docs ports.DocumentStore,
	feedback ports.FeedbackStore,
	identity ports.Identity,
	learner ports.FeedbackLearner,
	logger *slog.Logger,
) *FeedbackUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackUseCase{
		docs:     docs,
		feedback: feedback,
		identity: identity,
		learner:  learner,
		logger:   logger,
	}
}

func (uc *FeedbackUseCase) Ingest(ctx context.Context, req ports.FeedbackRequest) (*domain.InsightReport, error) {
	if !validFeedbackKind(req.Kind) {
		return nil, domain.WrapError(domain.ErrInput, "ingest feedback", fmt.Errorf("unknown feedback kind: %s", req.Kind))
	}

	doc, err := uc.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	userID, err := uc.identity.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	record := &domain.FeedbackRecord{
		ID:               uuid.NewString(),
		DocumentID:       req.DocumentID,
		UserID:           userID,
		Original:         req.Original,
		Corrected:        req.Corrected,
		Kind:             req.Kind,
		Notes:            req.Notes,
		ConfidenceRating: req.ConfidenceRating,
		CreatedAt:        time.Now().UTC(),
	}
	if err := uc.feedback.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store feedback record: %w", err)
	}

	if doc.Status == domain.StatusSucceeded {
		if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.StatusCorrected, ""); err != nil {
			uc.logger.Warn("mark document corrected", "document_id", doc.ID, "error", err)
		}
	}

	uc.learner.Submit(*record)

	diffs := domain.DiffResults(req.Original, req.Corrected)
	report := buildInsights(req.Kind, diffs)
	uc.logger.Info("feedback ingested",
		"record_id", record.ID,
		"document_id", req.DocumentID,
		"kind", string(req.Kind),
		"diffs", len(diffs),
	)
	return &report, nil
}

func buildInsights(kind domain.FeedbackKind, diffs []domain.FieldDiff) domain.InsightReport {
	report := domain.InsightReport{
		CommonIssues: []string{},
		Suggestions:  []string{},
	}

	switch kind {
	case domain.FeedbackCorrect:
		report.AccuracyImprovement = "extraction confirmed; template weighting reinforced"
	default:
		report.AccuracyImprovement = "correction recorded; template weighting adjusted"
	}

	for _, diff := range diffs {
		switch diff.Field {
		case "salesAmounts", "purchaseAmounts":
			report.CommonIssues = append(report.CommonIssues,
				fmt.Sprintf("%s total misread: extracted %.2f, corrected to %.2f", diff.Field, diff.Original, diff.Corrected))
			if math.Abs(diff.Delta) >= 1 {
				report.Suggestions = append(report.Suggestions,
					"check the document for multiple VAT rate lines; itemized rates are summed unless a combined total is stated")
			} else {
				report.Suggestions = append(report.Suggestions,
					"small numeric deltas usually come from decimal separator locale; verify the document locale")
			}
		case "confidence":
			report.CommonIssues = append(report.CommonIssues,
				fmt.Sprintf("confidence misjudged: reported %.2f, user rated %.2f", diff.Original, diff.Corrected))
		}
	}

	if kind != domain.FeedbackCorrect && len(report.CommonIssues) == 0 {
		report.CommonIssues = append(report.CommonIssues, "extraction flagged without a numeric difference; response text retained for review")
	}
	return report
}

func validFeedbackKind(kind domain.FeedbackKind) bool {
	switch kind {
	case domain.FeedbackCorrect, domain.FeedbackPartiallyCorrect, domain.FeedbackIncorrect:
		return true
	default:
		return false
	}
}
