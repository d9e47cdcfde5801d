package respparse

import (
	"math"
	"testing"

	"github.com/vatsight/pipeline/internal/core/domain"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseShortResponseIsNoContent(t *testing.T) {
	p := New(Config{})
	out := p.Parse("n/a")
	if out.Diagnostic != domain.DiagnosticNoContent {
		t.Fatalf("expected no_content, got %s", out.Diagnostic)
	}
	if out.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", out.Confidence)
	}
}

func TestParseNoTaxDataWhenNoTokensAndNoAmounts(t *testing.T) {
	p := New(Config{})
	out := p.Parse("The document appears to be a photograph of a building facade.")
	if out.Diagnostic != domain.DiagnosticNoTaxData {
		t.Fatalf("expected no_tax_data, got %s", out.Diagnostic)
	}
	if out.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", out.Confidence)
	}
}

func TestParseItemizedRatesWithCombinedTotal(t *testing.T) {
	p := New(Config{})
	raw := "VAT MIN €1.51\nVAT NIL €0.00\nVAT STD23 €109.85\nTotal Amount VAT: €111.36"
	out := p.Parse(raw)

	if out.Diagnostic != domain.DiagnosticClean {
		t.Fatalf("expected clean_extraction, got %s", out.Diagnostic)
	}
	if len(out.Amounts) != 3 {
		t.Fatalf("expected 3 line amounts, got %v", out.Amounts)
	}
	wantAmounts := []float64{1.51, 0, 109.85}
	for i, want := range wantAmounts {
		if !approxEqual(out.Amounts[i], want) {
			t.Fatalf("amount[%d] = %v, want %v", i, out.Amounts[i], want)
		}
	}
	if !out.HasCombined || !approxEqual(out.CombinedTotal, 111.36) {
		t.Fatalf("expected combined total 111.36, got %v (has=%v)", out.CombinedTotal, out.HasCombined)
	}
	if len(out.RateLabels) != 3 {
		t.Fatalf("expected 3 rate labels, got %v", out.RateLabels)
	}
	if out.Confidence < 0.8 {
		t.Fatalf("expected confidence >= 0.8 for itemized extraction, got %v", out.Confidence)
	}
}

func TestParseSingleAmountIsClean(t *testing.T) {
	p := New(Config{})
	out := p.Parse("The invoice lists a VAT amount of €45.50 for this period.")
	if out.Diagnostic != domain.DiagnosticClean {
		t.Fatalf("expected clean_extraction, got %s", out.Diagnostic)
	}
	if len(out.Amounts) != 1 || !approxEqual(out.Amounts[0], 45.50) {
		t.Fatalf("expected single amount 45.50, got %v", out.Amounts)
	}
}

func TestParseMultipleUnlabeledAmountsIsAmbiguous(t *testing.T) {
	p := New(Config{})
	out := p.Parse("Possible vat candidates found: €10.00 or perhaps €20.00.")
	if out.Diagnostic != domain.DiagnosticAmbiguous {
		t.Fatalf("expected ambiguous_extraction, got %s", out.Diagnostic)
	}
	if out.Confidence >= 0.8 {
		t.Fatalf("ambiguous result should not score high confidence, got %v", out.Confidence)
	}
}

func TestParseExplicitConfidencePercentage(t *testing.T) {
	p := New(Config{})
	out := p.Parse("VAT total: €45.00 extracted from the summary box.\nConfidence: 90%")
	if out.Diagnostic != domain.DiagnosticClean {
		t.Fatalf("expected clean_extraction, got %s", out.Diagnostic)
	}
	if !approxEqual(out.Confidence, 0.9) {
		t.Fatalf("expected stated confidence 0.9, got %v", out.Confidence)
	}
	if !out.HasCombined || !approxEqual(out.CombinedTotal, 45.00) {
		t.Fatalf("expected combined total 45.00, got %v", out.CombinedTotal)
	}
}

func TestParseCombinedLineExcludedFromLineAmounts(t *testing.T) {
	p := New(Config{})
	out := p.Parse("VAT standard €100.00\nVAT reduced €11.36\nVAT total €111.36")
	if len(out.Amounts) != 2 {
		t.Fatalf("combined-total line must not contribute a line amount, got %v", out.Amounts)
	}
	if !out.HasCombined || !approxEqual(out.CombinedTotal, 111.36) {
		t.Fatalf("expected combined total 111.36, got %v", out.CombinedTotal)
	}
}

func TestParseEuropeanDecimalConvention(t *testing.T) {
	p := New(Config{})
	out := p.Parse("Totale IVA indicata sul documento: €1.234,56 come da riepilogo.")
	if len(out.Amounts) != 1 || !approxEqual(out.Amounts[0], 1234.56) {
		t.Fatalf("expected 1234.56 from comma-decimal text, got %v", out.Amounts)
	}
}

func TestParseStructuredPayload(t *testing.T) {
	p := New(Config{})
	raw := `{"total_vat": 111.36, "vat_amounts": [1.51, 0, 109.85], "confidence": 88, "rate_labels": ["reduced-rate", "zero-rate", "standard-rate"]}`
	out := p.Parse(raw)

	if out.Diagnostic != domain.DiagnosticClean {
		t.Fatalf("expected clean_extraction, got %s", out.Diagnostic)
	}
	if !out.HasCombined || !approxEqual(out.CombinedTotal, 111.36) {
		t.Fatalf("expected combined total 111.36, got %v", out.CombinedTotal)
	}
	if !approxEqual(out.Confidence, 0.88) {
		t.Fatalf("expected normalized confidence 0.88, got %v", out.Confidence)
	}
	if len(out.RateLabels) != 3 {
		t.Fatalf("expected 3 rate labels, got %v", out.RateLabels)
	}
}

func TestParseStructuredPayloadRejectsNegatives(t *testing.T) {
	p := New(Config{})
	out := p.Parse(`{"vat_amounts": [10.0, -5.0, 2.5]}`)
	if len(out.Amounts) != 2 {
		t.Fatalf("negative amounts must be dropped, got %v", out.Amounts)
	}
}

func TestParseMalformedJSONFallsBackToFreeText(t *testing.T) {
	p := New(Config{})
	out := p.Parse(`{"total_vat": broken json but the vat amount is clearly ` + "€25.00" + ` here}`)
	if len(out.Amounts) != 1 || !approxEqual(out.Amounts[0], 25.00) {
		t.Fatalf("expected free-text fallback to find 25.00, got %v", out.Amounts)
	}
}

func TestRateLabelDetection(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"charged at the standard rate of vat", "standard-rate"},
		{"vat std23 applied to the net", "standard-rate"},
		{"reduced vat rate on food items", "reduced-rate"},
		{"vat min band for utilities", "reduced-rate"},
		{"zero rated vat export line", "zero-rate"},
		{"vat nil on this invoice line", "zero-rate"},
		{"this supply is exempt from vat", "exempt"},
	}
	for _, tc := range cases {
		labels := extractRateLabels(tc.text)
		if len(labels) != 1 || labels[0] != tc.want {
			t.Fatalf("extractRateLabels(%q) = %v, want [%s]", tc.text, labels, tc.want)
		}
	}
}

func TestParseNumberLocales(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"111.36", 111.36},
		{"111,36", 111.36},
		{"1500", 1500},
	}
	for _, tc := range cases {
		got, ok := parseNumber(tc.in)
		if !ok || !approxEqual(got, tc.want) {
			t.Fatalf("parseNumber(%q) = %v (ok=%v), want %v", tc.in, got, ok, tc.want)
		}
	}
}
