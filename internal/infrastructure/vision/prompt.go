package vision

import (
	"strings"

	"github.com/vatsight/pipeline/internal/core/domain"
)

// DefaultTemplates are the prompt variants the learning loop selects between.
// Template text asks for the structured payload first; the response parser
// falls back to free-text matching when the model ignores that.
func DefaultTemplates() []domain.PromptTemplate {
	return []domain.PromptTemplate{
		{
			ID:   "structured-json",
			Name: "structured JSON request",
			Text: "You are a VAT extraction assistant. Read the document and return ONLY a JSON object " +
				`of the form {"total_vat": number, "vat_amounts": [number], "confidence": number, "rate_labels": [string]}. ` +
				"List every VAT line item in vat_amounts. If the document states a combined VAT total, put it in total_vat. " +
				"Use rate labels standard-rate, reduced-rate, zero-rate or exempt. Never invent amounts.",
		},
		{
			ID:   "itemized-lines",
			Name: "itemized line report",
			Text: "Extract all VAT amounts from this document. Report one line per VAT rate in the form " +
				"'VAT <RATE> <amount with currency symbol>', then a final line 'Total Amount VAT: <amount>'. " +
				"State your confidence as a percentage. If the document contains no VAT information, say so plainly.",
		},
		{
			ID:   "total-only",
			Name: "single total request",
			Text: "Find the total VAT (tax) amount on this document and answer with a single line " +
				"'Total VAT: <amount with currency symbol>'. If several rates apply, still report only the combined total.",
		},
	}
}

func renderPrompt(template domain.PromptTemplate, category domain.DocumentCategory) string {
	var b strings.Builder
	b.WriteString(template.Text)
	switch category {
	case domain.CategorySales:
		b.WriteString(" This document is a sales document; the VAT found is output VAT.")
	case domain.CategoryPurchases:
		b.WriteString(" This document is a purchase document; the VAT found is input VAT.")
	}
	return b.String()
}
