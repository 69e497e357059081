package textextract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes OCR over a raw document payload.
type Runner interface {
	Run(ctx context.Context, data []byte, mimeType string) (string, error)
}

// TesseractRunner shells out to the tesseract binary. The payload is written
// to a temp file because tesseract reads from disk.
type TesseractRunner struct {
	// Binary overrides the tesseract executable path. Empty means "tesseract"
	// from PATH.
	Binary string
	// Languages is the -l argument, e.g. "eng". Empty uses tesseract's default.
	Languages string
}

// Run performs OCR and returns the recognized text.
func (r *TesseractRunner) Run(ctx context.Context, data []byte, mimeType string) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "tesseract"
	}

	dir, err := os.MkdirTemp("", "ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr tempdir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	input := filepath.Join(dir, "input"+extensionFor(mimeType))
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return "", fmt.Errorf("ocr write input: %w", err)
	}

	args := []string{input, "stdout"}
	if r.Languages != "" {
		args = append(args, "-l", r.Languages)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return "", fmt.Errorf("tesseract: %w (%s)", err, stderr)
	}
	return strings.TrimSpace(string(out)), nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/tiff":
		return ".tif"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
