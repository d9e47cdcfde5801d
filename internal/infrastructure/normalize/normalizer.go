package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/vatsight/pipeline/internal/core/domain"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeCSV  = "text/csv"
	mimeTSV  = "text/tab-separated-values"
	mimeTXT  = "text/plain"
	mimePNG  = "image/png"
	mimeJPEG = "image/jpeg"
)

// Normalizer turns raw bytes plus a declared media type into either tabular
// text for the structured parser or per-page visual payloads for the vision
// client. It performs no character recognition itself.
type Normalizer struct {
	maxSheetRows int
}

func New() *Normalizer {
	return &Normalizer{maxSheetRows: 5000}
}

func (n *Normalizer) Normalize(_ context.Context, payload []byte, mediaType string) (domain.NormalizedDocument, error) {
	if len(payload) == 0 {
		return domain.NormalizedDocument{}, domain.WrapError(domain.ErrInput, "normalize", errors.New("empty payload"))
	}

	switch canonicalMediaType(mediaType) {
	case mimeXLSX, mimeXLS:
		text, err := n.spreadsheetText(payload)
		if err != nil {
			return domain.NormalizedDocument{}, domain.WrapError(domain.ErrInput, "normalize spreadsheet", err)
		}
		return domain.NormalizedDocument{Kind: domain.NormalizedTabular, Text: text}, nil

	case mimeCSV, mimeTSV, mimeTXT:
		if !utf8.Valid(payload) {
			return domain.NormalizedDocument{}, domain.WrapError(domain.ErrInput, "normalize text", errors.New("payload is not valid utf-8"))
		}
		return domain.NormalizedDocument{Kind: domain.NormalizedTabular, Text: strings.TrimSpace(string(payload))}, nil

	case mimePDF:
		return n.pdfDocument(payload)

	case mimePNG, mimeJPEG:
		page := domain.NormalizedPage{MediaType: canonicalMediaType(mediaType), Data: payload}
		return domain.NormalizedDocument{Kind: domain.NormalizedVisual, Pages: []domain.NormalizedPage{page}}, nil

	default:
		return domain.NormalizedDocument{}, domain.WrapError(domain.ErrInput, "normalize", fmt.Errorf("unsupported media type: %s", mediaType))
	}
}

// pdfDocument harvests embedded text page by page. Pages without a usable
// text layer are handed to the vision client as rendered payloads instead.
func (n *Normalizer) pdfDocument(payload []byte) (domain.NormalizedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return domain.NormalizedDocument{}, domain.WrapError(domain.ErrInput, "open pdf", err)
	}

	plain, err := reader.GetPlainText()
	if err == nil {
		var buf bytes.Buffer
		if _, copyErr := io.Copy(&buf, plain); copyErr == nil {
			text := strings.TrimSpace(buf.String())
			if text != "" {
				pages := []domain.NormalizedPage{{MediaType: mimeTXT, Text: text}}
				return domain.NormalizedDocument{Kind: domain.NormalizedVisual, Pages: pages}, nil
			}
		}
	}

	// Scanned PDF: no text layer. Forward the original bytes as one visual
	// unit; the external model is OCR-capable.
	page := domain.NormalizedPage{MediaType: mimePDF, Data: payload}
	return domain.NormalizedDocument{Kind: domain.NormalizedVisual, Pages: []domain.NormalizedPage{page}}, nil
}

func (n *Normalizer) spreadsheetText(payload []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for i, row := range rows {
			if i >= n.maxSheetRows {
				break
			}
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("workbook contains no cell data")
	}
	return text, nil
}

func canonicalMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpg":
		return mimeJPEG
	default:
		return mt
	}
}
