package domain

import "testing"

func TestFingerprintSensitiveToAllInputs(t *testing.T) {
	payload := []byte("Date,VAT\n2024-01-02,1.51")

	base := Fingerprint(payload, "text/csv", CategorySales)
	if base != Fingerprint(payload, "text/csv", CategorySales) {
		t.Fatalf("fingerprint must be deterministic")
	}
	if base == Fingerprint([]byte("other"), "text/csv", CategorySales) {
		t.Fatalf("fingerprint must change with payload")
	}
	if base == Fingerprint(payload, "text/plain", CategorySales) {
		t.Fatalf("fingerprint must change with media type")
	}
	if base == Fingerprint(payload, "text/csv", CategoryPurchases) {
		t.Fatalf("fingerprint must change with category")
	}
}

func TestFingerprintSeparatorsPreventCollisions(t *testing.T) {
	// Without separators, payload "ab" + type "c" would collide with "a" + "bc".
	a := Fingerprint([]byte("ab"), "c", CategorySales)
	b := Fingerprint([]byte("a"), "bc", CategorySales)
	if a == b {
		t.Fatalf("field boundaries must be preserved in the hash")
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to DocumentStatus }{
		{StatusUploaded, StatusQueued},
		{StatusQueued, StatusProcessing},
		{StatusProcessing, StatusSucceeded},
		{StatusProcessing, StatusFailed},
		{StatusSucceeded, StatusCorrected},
		{StatusSucceeded, StatusQueued},
		{StatusFailed, StatusQueued},
		{StatusCorrected, StatusQueued},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to DocumentStatus }{
		{StatusUploaded, StatusProcessing},
		{StatusUploaded, StatusSucceeded},
		{StatusQueued, StatusSucceeded},
		{StatusProcessing, StatusQueued},
		{StatusFailed, StatusSucceeded},
		{StatusCorrected, StatusSucceeded},
		{StatusSucceeded, StatusFailed},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestNewExtractionResultSanitizes(t *testing.T) {
	result := NewExtractionResult("fp", EngineVision, []float64{10, -5, 0}, []float64{-1}, 1.7)
	if len(result.SalesAmounts) != 2 {
		t.Fatalf("negative sales amount must be dropped, got %v", result.SalesAmounts)
	}
	if len(result.PurchaseAmounts) != 0 {
		t.Fatalf("negative purchase amount must be dropped, got %v", result.PurchaseAmounts)
	}
	if result.Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %v", result.Confidence)
	}

	result = NewExtractionResult("fp", EngineVision, nil, nil, -0.3)
	if result.Confidence != 0 {
		t.Fatalf("confidence must clamp to 0, got %v", result.Confidence)
	}
}

func TestErrorCategoryTaxonomy(t *testing.T) {
	cases := []struct {
		kind error
		want string
	}{
		{ErrInput, "input_error"},
		{ErrParse, "parse_error"},
		{ErrValidation, "validation_error"},
		{ErrCache, "cache_error"},
		{ErrExternalAPI, "external_api_error"},
		{ErrTemporary, "external_api_error"},
	}
	for _, tc := range cases {
		err := WrapError(tc.kind, "op", ErrNotFound)
		if got := ErrorCategory(err); got != tc.want {
			t.Fatalf("ErrorCategory(%v) = %q, want %q", tc.kind, got, tc.want)
		}
	}
	if got := ErrorCategory(nil); got != "" {
		t.Fatalf("nil error must have empty category, got %q", got)
	}
}

func TestDiffResults(t *testing.T) {
	original := ExtractionResult{SalesAmounts: []float64{111.36}, Confidence: 0.85}
	corrected := ExtractionResult{SalesAmounts: []float64{120.00}, Confidence: 0.85}

	diffs := DiffResults(original, corrected)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %v", diffs)
	}
	if diffs[0].Field != "salesAmounts" || diffs[0].Delta != 120.00-111.36 {
		t.Fatalf("unexpected diff %+v", diffs[0])
	}

	if diffs := DiffResults(original, original); len(diffs) != 0 {
		t.Fatalf("identical results must not diff, got %v", diffs)
	}
}
