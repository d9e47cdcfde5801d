package domain

import "time"

type FeedbackKind string

const (
	FeedbackCorrect          FeedbackKind = "correct"
	FeedbackPartiallyCorrect FeedbackKind = "partially_correct"
	FeedbackIncorrect        FeedbackKind = "incorrect"
)

// FeedbackRecord is immutable once created; corrections never edit the
// original result in place.
type FeedbackRecord struct {
	ID               string           `json:"id"`
	DocumentID       string           `json:"document_id"`
	UserID           string           `json:"user_id"`
	Original         ExtractionResult `json:"original"`
	Corrected        ExtractionResult `json:"corrected"`
	Kind             FeedbackKind     `json:"kind"`
	Notes            string           `json:"notes,omitempty"`
	ConfidenceRating float64          `json:"confidence_rating,omitempty"`
	ImprovementMade  bool             `json:"improvement_made"`
	CreatedAt        time.Time        `json:"created_at"`
}

// FieldDiff names one extraction field whose corrected value differs from the
// original, with the magnitude of the numeric disagreement where applicable.
type FieldDiff struct {
	Field     string  `json:"field"`
	Original  float64 `json:"original"`
	Corrected float64 `json:"corrected"`
	Delta     float64 `json:"delta"`
}

// InsightReport is returned to the user who submitted feedback.
type InsightReport struct {
	AccuracyImprovement string   `json:"accuracyImprovement"`
	CommonIssues        []string `json:"commonIssues"`
	Suggestions         []string `json:"suggestions"`
}

// DiffResults computes the field-level differences between an original and a
// corrected extraction. Totals are compared per side; the confidence field is
// included when the user's correction implies it was misjudged.
func DiffResults(original, corrected ExtractionResult) []FieldDiff {
	var diffs []FieldDiff
	if o, c := Sum(original.SalesAmounts), Sum(corrected.SalesAmounts); o != c {
		diffs = append(diffs, FieldDiff{Field: "salesAmounts", Original: o, Corrected: c, Delta: c - o})
	}
	if o, c := Sum(original.PurchaseAmounts), Sum(corrected.PurchaseAmounts); o != c {
		diffs = append(diffs, FieldDiff{Field: "purchaseAmounts", Original: o, Corrected: c, Delta: c - o})
	}
	if original.Confidence != corrected.Confidence && corrected.Confidence > 0 {
		diffs = append(diffs, FieldDiff{
			Field:     "confidence",
			Original:  original.Confidence,
			Corrected: corrected.Confidence,
			Delta:     corrected.Confidence - original.Confidence,
		})
	}
	return diffs
}

func Sum(amounts []float64) float64 {
	var total float64
	for _, v := range amounts {
		total += v
	}
	return total
}

// ConfidenceSnapshot is a derived, time-windowed aggregate over extraction
// outcomes. It is recomputed by the monitor, never hand-edited.
type ConfidenceSnapshot struct {
	SuccessRate             float64        `json:"successRate"`
	AverageConfidence       float64        `json:"averageConfidence"`
	AverageProcessingTimeMs float64        `json:"averageProcessingTimeMs"`
	TotalAttempts           int            `json:"totalAttempts"`
	ErrorCounts             map[string]int `json:"errorCounts"`
	WindowStart             time.Time      `json:"windowStart"`
	WindowEnd               time.Time      `json:"windowEnd"`
}
