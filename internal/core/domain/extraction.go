package domain

import "time"

type Engine string

const (
	EngineStructured Engine = "structured"
	EngineVision     Engine = "vision"
	EngineFallback   Engine = "fallback"
)

// Diagnostic is the response parser's categorical judgment of model-response
// quality, distinct from the numeric confidence score.
type Diagnostic string

const (
	DiagnosticClean     Diagnostic = "clean_extraction"
	DiagnosticAmbiguous Diagnostic = "ambiguous_extraction"
	DiagnosticNoTaxData Diagnostic = "no_tax_data"
	DiagnosticNoContent Diagnostic = "no_content"
)

// ExtractionResult is the canonical reconciled output for one document.
// Amount lists may be empty but never contain negatives; confidence is
// clamped into [0,1] at construction.
type ExtractionResult struct {
	Fingerprint     string    `json:"fingerprint"`
	SalesAmounts    []float64 `json:"sales_amounts"`
	PurchaseAmounts []float64 `json:"purchase_amounts"`
	Confidence      float64   `json:"confidence"`
	Engine          Engine    `json:"engine"`
	Compliant       bool      `json:"compliant"`
	TemplateID      string    `json:"template_id,omitempty"`
	RawResponse     string    `json:"raw_response,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewExtractionResult(fingerprint string, engine Engine, sales, purchases []float64, confidence float64) ExtractionResult {
	return ExtractionResult{
		Fingerprint:     fingerprint,
		SalesAmounts:    sanitizeAmounts(sales),
		PurchaseAmounts: sanitizeAmounts(purchases),
		Confidence:      ClampConfidence(confidence),
		Engine:          engine,
		CreatedAt:       time.Now().UTC(),
	}
}

func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func sanitizeAmounts(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if v >= 0 {
			out = append(out, v)
		}
	}
	return out
}

// StructuredOutcome is what the tabular parser reports for one document.
type StructuredOutcome struct {
	Amounts    []float64
	Confidence float64
	HeaderHit  string
	Locale     string
}

// VisionOutcome is the parsed model response for one document.
type VisionOutcome struct {
	Amounts       []float64
	CombinedTotal float64
	HasCombined   bool
	Confidence    float64
	Diagnostic    Diagnostic
	RateLabels    []string
	TemplateID    string
	RawResponse   string
	TokensUsed    int
	ModelDuration time.Duration
}

// FallbackOutcome carries the deterministic last-resort estimate used when
// neither engine produced anything usable.
type FallbackOutcome struct {
	Amounts    []float64
	Confidence float64
	Reason     string
}
