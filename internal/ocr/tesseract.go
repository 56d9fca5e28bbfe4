package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tesseract implements the Recognizer interface by running the tesseract CLI
type Tesseract struct {
	path      string
	languages string
}

// NewTesseract creates a Tesseract recognizer. path defaults to "tesseract"
// on PATH and languages to "eng".
func NewTesseract(path, languages string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	return &Tesseract{path: path, languages: languages}
}

// Recognize pipes the image through tesseract and returns its text
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	pngData, err := PrepareImage(imageData, contentType)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, t.path, "stdin", "stdout", "-l", t.languages)
	cmd.Stdin = bytes.NewReader(pngData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: running %s: %w: %s", ErrUpstreamUnavailable, t.path, err, strings.TrimSpace(stderr.String()))
	}

	return joinFragments(stdout.String()), nil
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}
