package usecase

import (
	"math"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// ReconcilerConfig carries the confidence constants of the validator. They
// are tunable defaults, not calibrated truths.
type ReconcilerConfig struct {
	// StructuredHighConfidence is the threshold at or above which a
	// structured-parser result wins outright.
	StructuredHighConfidence float64
	// AgreementTolerance is the absolute difference within which two source
	// totals count as agreeing.
	AgreementTolerance float64
	// AgreementBoost is added when independent sources agree.
	AgreementBoost float64
	// DisagreementFloor is the confidence assigned on material disagreement;
	// it stays above zero so the result remains reviewable downstream.
	DisagreementFloor float64
	// CompliantThreshold marks the confidence at which a result is considered
	// fit for filing without manual review.
	CompliantThreshold float64
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		StructuredHighConfidence: 0.85,
		AgreementTolerance:       0.02,
		AgreementBoost:           0.1,
		DisagreementFloor:        0.2,
		CompliantThreshold:       0.5,
	}
}

// Reconciler merges the structured parser's and the vision pipeline's
// outcomes (plus the deterministic fallback) into one canonical result.
type Reconciler struct {
	cfg ReconcilerConfig
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	def := DefaultReconcilerConfig()
	if cfg.StructuredHighConfidence <= 0 {
		cfg.StructuredHighConfidence = def.StructuredHighConfidence
	}
	if cfg.AgreementTolerance <= 0 {
		cfg.AgreementTolerance = def.AgreementTolerance
	}
	if cfg.AgreementBoost <= 0 {
		cfg.AgreementBoost = def.AgreementBoost
	}
	if cfg.DisagreementFloor <= 0 {
		cfg.DisagreementFloor = def.DisagreementFloor
	}
	if cfg.CompliantThreshold <= 0 {
		cfg.CompliantThreshold = def.CompliantThreshold
	}
	return &Reconciler{cfg: cfg}
}

// Reconcile applies the priority policy: a high-confidence structured result
// wins; otherwise a clean vision extraction; material disagreement between
// the two keeps both candidates and floors the confidence instead of silently
// picking one.
func (r *Reconciler) Reconcile(
	fingerprint string,
	category domain.DocumentCategory,
	structured *domain.StructuredOutcome,
	vision *domain.VisionOutcome,
	fallback *domain.FallbackOutcome,
) domain.ExtractionResult {
	structuredTotal, structuredOK := structuredCandidate(structured)
	visionTotal, visionOK := visionCandidate(vision)

	var result domain.ExtractionResult

	switch {
	case structuredOK && structured.Confidence >= r.cfg.StructuredHighConfidence:
		confidence := structured.Confidence
		if visionOK && math.Abs(structuredTotal-visionTotal) <= r.cfg.AgreementTolerance {
			confidence = domain.ClampConfidence(confidence + r.cfg.AgreementBoost)
		}
		result = buildResult(fingerprint, category, domain.EngineStructured, structured.Amounts, confidence)

	case structuredOK && visionOK && math.Abs(structuredTotal-visionTotal) > r.cfg.AgreementTolerance:
		// Material disagreement: keep both candidates for audit.
		result = buildResult(fingerprint, category, domain.EngineVision,
			[]float64{structuredTotal, visionTotal}, r.cfg.DisagreementFloor)

	case visionOK && vision.Diagnostic == domain.DiagnosticClean:
		confidence := vision.Confidence
		if structuredOK && math.Abs(structuredTotal-visionTotal) <= r.cfg.AgreementTolerance {
			confidence = domain.ClampConfidence(confidence + r.cfg.AgreementBoost)
		}
		result = buildResult(fingerprint, category, domain.EngineVision, []float64{visionTotal}, confidence)

	case structuredOK:
		result = buildResult(fingerprint, category, domain.EngineStructured, structured.Amounts, structured.Confidence)

	case visionOK:
		// Ambiguous vision data: usable but degraded.
		confidence := math.Min(vision.Confidence, r.cfg.DisagreementFloor)
		result = buildResult(fingerprint, category, domain.EngineVision, vision.Amounts, confidence)

	default:
		var amounts []float64
		var confidence float64
		if fallback != nil {
			amounts = fallback.Amounts
			confidence = fallback.Confidence
		}
		result = buildResult(fingerprint, category, domain.EngineFallback, amounts, confidence)
	}

	if vision != nil {
		result.TemplateID = vision.TemplateID
		result.RawResponse = vision.RawResponse
	}
	result.Compliant = result.Confidence >= r.cfg.CompliantThreshold
	return result
}

// structuredCandidate reduces a structured outcome to a single total.
func structuredCandidate(structured *domain.StructuredOutcome) (float64, bool) {
	if structured == nil || len(structured.Amounts) == 0 || structured.Confidence <= 0 {
		return 0, false
	}
	return domain.Sum(structured.Amounts), true
}

// visionCandidate reduces a vision outcome to a single total. An explicit
// combined-total label overrides the sum of per-rate line items.
func visionCandidate(vision *domain.VisionOutcome) (float64, bool) {
	if vision == nil {
		return 0, false
	}
	switch vision.Diagnostic {
	case domain.DiagnosticNoContent, domain.DiagnosticNoTaxData:
		return 0, false
	}
	if vision.HasCombined {
		return vision.CombinedTotal, true
	}
	if len(vision.Amounts) == 0 {
		return 0, false
	}
	return domain.Sum(vision.Amounts), true
}

func buildResult(fingerprint string, category domain.DocumentCategory, engine domain.Engine, amounts []float64, confidence float64) domain.ExtractionResult {
	switch category {
	case domain.CategoryPurchases:
		return domain.NewExtractionResult(fingerprint, engine, nil, amounts, confidence)
	default:
		return domain.NewExtractionResult(fingerprint, engine, amounts, nil, confidence)
	}
}
