package textextract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// minDigitalTextLen is the threshold below which a PDF is treated as a scan:
// a real invoice carries far more digital text than this, so anything shorter
// is almost certainly an image wrapped in a PDF.
const minDigitalTextLen = 100

// extractPDF pulls the digital text layer, falling back to OCR when the
// document looks scanned. OCR failures fall back to whatever digital text was
// found rather than failing the whole extraction.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	text, err := pdfPlainText(data)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExtraction, "parse pdf")
	}

	if len(text) >= minDigitalTextLen || e.ocr == nil {
		if text == "" {
			return "", apperrors.Extraction("pdf contains no extractable text")
		}
		return text, nil
	}

	ocrText, ocrErr := e.ocr.Run(ctx, data, "application/pdf")
	if ocrErr != nil {
		e.logger.WarnContext(ctx, "ocr fallback failed, keeping digital text",
			"digital_len", len(text), "err", ocrErr)
		if text == "" {
			return "", apperrors.Wrap(ocrErr, apperrors.ErrCodeExtraction, "ocr scanned pdf")
		}
		return text, nil
	}
	if strings.TrimSpace(ocrText) == "" {
		return text, nil
	}
	return ocrText, nil
}

func pdfPlainText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
