// Package textextract turns attachment payloads into plain text for the field
// extractors: digital PDF text with an OCR fallback for scans, HTML
// stripping, and passthrough for plain text.
package textextract

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// Extractor dispatches on MIME type. It implements the TextExtractor
// interface used by the worker pipeline.
type Extractor struct {
	ocr    Runner
	logger *slog.Logger
}

// New creates an Extractor. ocr may be nil, which disables the scanned
// document fallback.
func New(ocr Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, logger: logger}
}

// ExtractText converts one attachment payload to plain text.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", apperrors.Extraction("empty attachment payload")
	}

	mt := mimeType
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.ToLower(strings.TrimSpace(mt))

	switch {
	case mt == "application/pdf":
		return e.extractPDF(ctx, data)
	case mt == "text/html":
		return StripHTML(string(data)), nil
	case strings.HasPrefix(mt, "text/"):
		return string(data), nil
	case strings.HasPrefix(mt, "image/"):
		return e.runOCR(ctx, data, mt)
	default:
		return "", apperrors.Extractionf("unsupported attachment type %q", mimeType)
	}
}

func (e *Extractor) runOCR(ctx context.Context, data []byte, mimeType string) (string, error) {
	if e.ocr == nil {
		return "", apperrors.Extractionf("no OCR engine configured for %q", mimeType)
	}
	text, err := e.ocr.Run(ctx, data, mimeType)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeExtraction, "ocr %q", mimeType)
	}
	return text, nil
}
