package respparse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// The upstream model's phrasing is not contractually fixed, so everything in
// this package is pattern matching over free text, guarded by the fixture
// suite in parser_test.go. Keep this logic here; it must not leak into the
// validator or the cache.

var (
	reCurrency = regexp.MustCompile(`(?:[€$£]|\b(?:EUR|USD|GBP)\b)\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`)
	reConfPct  = regexp.MustCompile(`(?i)confidence\D{0,12}(\d{1,3})\s*%`)
	reCombined = regexp.MustCompile(`(?i)\b(?:total\s+(?:amount\s+)?(?:vat|tax)|(?:vat|tax)\s+total)\b`)
)

var taxTokens = []string{"vat", "tax", "btw", "mwst", "iva", "tva"}

var rateLabelMap = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`\b(?:standard|std)\d*\b`), "standard-rate"},
	{regexp.MustCompile(`\b(?:reduced|min)\d*\b`), "reduced-rate"},
	{regexp.MustCompile(`\b(?:zero|nil)\d*\b`), "zero-rate"},
	{regexp.MustCompile(`\bexempt\b`), "exempt"},
}

type Config struct {
	// MinContentLength is the shortest response still worth parsing.
	MinContentLength int
	// CleanConfidence and AmbiguousConfidence apply when the model states no
	// explicit confidence. Tunable defaults, not calibrated truths.
	CleanConfidence     float64
	AmbiguousConfidence float64
}

func DefaultConfig() Config {
	return Config{
		MinContentLength:    20,
		CleanConfidence:     0.85,
		AmbiguousConfidence: 0.4,
	}
}

type Parser struct {
	cfg Config
}

func New(cfg Config) *Parser {
	def := DefaultConfig()
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = def.MinContentLength
	}
	if cfg.CleanConfidence <= 0 {
		cfg.CleanConfidence = def.CleanConfidence
	}
	if cfg.AmbiguousConfidence <= 0 {
		cfg.AmbiguousConfidence = def.AmbiguousConfidence
	}
	return &Parser{cfg: cfg}
}

// Parse extracts candidate amounts, confidence hints, tax-rate labels and the
// diagnostic classification from raw model output. A structured key/value
// payload is tried first; free-text matching is the fallback.
func (p *Parser) Parse(raw string) domain.VisionOutcome {
	text := strings.TrimSpace(raw)
	out := domain.VisionOutcome{RawResponse: raw}

	if len(text) < p.cfg.MinContentLength {
		out.Diagnostic = domain.DiagnosticNoContent
		return out
	}

	if strings.HasPrefix(text, "{") {
		if structured, ok := p.parseStructured(text); ok {
			structured.RawResponse = raw
			return structured
		}
	}

	out.Amounts = extractAmounts(text)
	out.RateLabels = extractRateLabels(text)

	if combined, ok := extractCombinedTotal(text); ok {
		out.CombinedTotal = combined
		out.HasCombined = true
	}

	hasTokens := containsTaxToken(text)
	if len(out.Amounts) == 0 && !out.HasCombined {
		if !hasTokens {
			out.Diagnostic = domain.DiagnosticNoTaxData
			return out
		}
		out.Diagnostic = domain.DiagnosticAmbiguous
		out.Confidence = 0
		return out
	}

	out.Diagnostic = p.classifyAmounts(out)
	out.Confidence = p.confidence(text, out.Diagnostic)
	return out
}

// classifyAmounts decides whether the amounts form a confident single total:
// an explicit combined label, a single candidate, or itemized rate lines.
func (p *Parser) classifyAmounts(out domain.VisionOutcome) domain.Diagnostic {
	switch {
	case out.HasCombined:
		return domain.DiagnosticClean
	case len(out.Amounts) == 1:
		return domain.DiagnosticClean
	case len(out.RateLabels) >= 2:
		// Itemized per-rate lines sum cleanly downstream.
		return domain.DiagnosticClean
	default:
		return domain.DiagnosticAmbiguous
	}
}

func (p *Parser) confidence(text string, diag domain.Diagnostic) float64 {
	if m := reConfPct.FindStringSubmatch(text); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil && pct >= 0 && pct <= 100 {
			return float64(pct) / 100
		}
	}
	if diag == domain.DiagnosticClean {
		return p.cfg.CleanConfidence
	}
	return p.cfg.AmbiguousConfidence
}

type structuredPayload struct {
	TotalVAT   *float64  `json:"total_vat"`
	VATAmounts []float64 `json:"vat_amounts"`
	Confidence *float64  `json:"confidence"`
	RateLabels []string  `json:"rate_labels"`
}

func (p *Parser) parseStructured(text string) (domain.VisionOutcome, bool) {
	var payload structuredPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.VisionOutcome{}, false
	}
	if payload.TotalVAT == nil && len(payload.VATAmounts) == 0 {
		return domain.VisionOutcome{}, false
	}

	out := domain.VisionOutcome{
		Amounts:    nonNegative(payload.VATAmounts),
		RateLabels: payload.RateLabels,
		Diagnostic: domain.DiagnosticClean,
		Confidence: p.cfg.CleanConfidence,
	}
	if payload.TotalVAT != nil && *payload.TotalVAT >= 0 {
		out.CombinedTotal = *payload.TotalVAT
		out.HasCombined = true
	}
	if payload.Confidence != nil {
		c := *payload.Confidence
		if c > 1 {
			c /= 100
		}
		out.Confidence = domain.ClampConfidence(c)
	}
	return out, true
}

func extractAmounts(text string) []float64 {
	var amounts []float64
	for _, line := range strings.Split(text, "\n") {
		combinedLine := reCombined.MatchString(line)
		for _, m := range reCurrency.FindAllStringSubmatch(line, -1) {
			if combinedLine {
				continue
			}
			if v, ok := parseNumber(m[1]); ok && v >= 0 {
				amounts = append(amounts, v)
			}
		}
	}
	return amounts
}

// extractCombinedTotal looks for an explicit combined-total label with an
// amount on the same line. Such a label overrides the sum of line items.
func extractCombinedTotal(text string) (float64, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !reCombined.MatchString(line) {
			continue
		}
		if m := reCurrency.FindStringSubmatch(line); m != nil {
			if v, ok := parseNumber(m[1]); ok && v >= 0 {
				return v, true
			}
		}
	}
	return 0, false
}

func extractRateLabels(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var labels []string
	for _, entry := range rateLabelMap {
		if seen[entry.label] {
			continue
		}
		if entry.re.MatchString(lower) {
			seen[entry.label] = true
			labels = append(labels, entry.label)
		}
	}
	return labels
}

func containsTaxToken(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range taxTokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	lastComma := strings.LastIndexByte(s, ',')
	lastPoint := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastComma > lastPoint:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func nonNegative(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if v >= 0 {
			out = append(out, v)
		}
	}
	return out
}
