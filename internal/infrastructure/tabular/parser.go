package tabular

import (
	"strconv"
	"strings"
	"time"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// headerTokens mark a column as carrying tax amounts. Matching is
// case-insensitive on whole header cells.
var headerTokens = []string{
	"vat", "vat amount", "tax", "tax amount", "sales tax",
	"btw", "mwst", "iva", "tva", "moms",
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"02-01-2006",
}

type Config struct {
	// HeaderConfidence is reported when an unambiguous tax-labeled column is
	// found; GuessConfidence when amounts come from an inline label match.
	// Both are tunable, not calibrated truths.
	HeaderConfidence float64
	GuessConfidence  float64
}

func DefaultConfig() Config {
	return Config{HeaderConfidence: 0.9, GuessConfidence: 0.35}
}

type Parser struct {
	cfg Config
}

func New(cfg Config) *Parser {
	if cfg.HeaderConfidence <= 0 {
		cfg.HeaderConfidence = DefaultConfig().HeaderConfidence
	}
	if cfg.GuessConfidence <= 0 {
		cfg.GuessConfidence = DefaultConfig().GuessConfidence
	}
	return &Parser{cfg: cfg}
}

// Parse applies column/header heuristics to delimited text. It fails closed:
// when no recognizable structure exists the outcome is empty with confidence 0.
func (p *Parser) Parse(text string) domain.StructuredOutcome {
	lines := splitLines(text)
	if len(lines) == 0 {
		return domain.StructuredOutcome{}
	}

	delim := detectDelimiter(lines)
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, splitRow(line, delim))
	}

	if headerRow, col, token := findTaxColumn(rows); col >= 0 {
		amounts, locale := collectColumn(rows[headerRow+1:], col)
		if len(amounts) > 0 {
			return domain.StructuredOutcome{
				Amounts:    amounts,
				Confidence: p.cfg.HeaderConfidence,
				HeaderHit:  token,
				Locale:     locale,
			}
		}
	}

	// No labeled column. Accept only rows that carry a tax token inline next
	// to a number; anything looser would be guessing wildly.
	amounts, locale := collectInline(rows)
	if len(amounts) > 0 {
		return domain.StructuredOutcome{
			Amounts:    amounts,
			Confidence: p.cfg.GuessConfidence,
			Locale:     locale,
		}
	}

	return domain.StructuredOutcome{}
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// detectDelimiter prefers tabs, then semicolons, then commas. Commas double
// as decimal separators in several locales, so they come last.
func detectDelimiter(lines []string) rune {
	sample := lines
	if len(sample) > 10 {
		sample = sample[:10]
	}
	counts := map[rune]int{'\t': 0, ';': 0, ',': 0}
	for _, line := range sample {
		for d := range counts {
			counts[d] += strings.Count(line, string(d))
		}
	}
	for _, d := range []rune{'\t', ';', ','} {
		if counts[d] >= len(sample) {
			return d
		}
	}
	return '\t'
}

func splitRow(line string, delim rune) []string {
	cells := strings.Split(line, string(delim))
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func findTaxColumn(rows [][]string) (rowIdx, colIdx int, token string) {
	limit := len(rows)
	if limit > 5 {
		limit = 5
	}
	for r := 0; r < limit; r++ {
		for c, cell := range rows[r] {
			normalized := strings.ToLower(strings.TrimSpace(cell))
			for _, t := range headerTokens {
				if normalized == t {
					return r, c, t
				}
			}
		}
	}
	return -1, -1, ""
}

func collectColumn(rows [][]string, col int) ([]float64, string) {
	var amounts []float64
	locale := ""
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		cell := row[col]
		if cell == "" || isDate(cell) {
			continue
		}
		if v, loc, ok := ParseAmount(cell); ok && v >= 0 {
			amounts = append(amounts, v)
			if locale == "" {
				locale = loc
			}
		}
	}
	return amounts, locale
}

func collectInline(rows [][]string) ([]float64, string) {
	var amounts []float64
	locale := ""
	for _, row := range rows {
		labeled := false
		for _, cell := range row {
			lower := strings.ToLower(cell)
			for _, t := range headerTokens {
				if strings.Contains(lower, t) {
					labeled = true
					break
				}
			}
		}
		if !labeled {
			continue
		}
		for _, cell := range row {
			if isDate(cell) {
				continue
			}
			if v, loc, ok := ParseAmount(cell); ok && v >= 0 {
				amounts = append(amounts, v)
				if locale == "" {
					locale = loc
				}
			}
		}
	}
	return amounts, locale
}

func isDate(cell string) bool {
	s := strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ParseAmount reads a numeric cell, tolerating currency symbols and both
// decimal conventions: "1,234.56" (point locale) and "1.234,56" (comma locale).
func ParseAmount(cell string) (value float64, locale string, ok bool) {
	s := strings.TrimSpace(cell)
	s = strings.Trim(s, "€$£ \t")
	if s == "" {
		return 0, "", false
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastPoint := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastComma > lastPoint:
		locale = "comma-decimal"
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastPoint >= 0:
		locale = "point-decimal"
		s = strings.ReplaceAll(s, ",", "")
	default:
		locale = "point-decimal"
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "", false
	}
	return v, locale, true
}
