// Package ocr turns photographed bills into text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstreamUnavailable is wrapped when the OCR engine cannot be run or reached
	ErrUpstreamUnavailable = errors.New("ocr upstream unavailable")
	// ErrUnsupportedImage is wrapped when the upload cannot be decoded as an image
	ErrUnsupportedImage = errors.New("unsupported image")
)

// Recognizer extracts the text of an image
type Recognizer interface {
	// Recognize returns the recognized text fragments in reading order,
	// one per line
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases any resources held by the recognizer
	Close() error
}

// Config selects and configures a Recognizer
type Config struct {
	Engine        string // "tesseract" or "gemini"
	TesseractPath string
	Languages     string // tesseract language codes, e.g. "eng+hin"
	GeminiKey     string
	GeminiModel   string
}

// New builds the Recognizer named by cfg.Engine
func New(cfg Config) (Recognizer, error) {
	switch cfg.Engine {
	case "tesseract", "":
		return NewTesseract(cfg.TesseractPath, cfg.Languages), nil
	case "gemini":
		return NewGemini(cfg.GeminiKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q (valid: tesseract, gemini)", cfg.Engine)
	}
}

// joinFragments trims every line and drops the empty ones
func joinFragments(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	fragments := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			fragments = append(fragments, line)
		}
	}
	return strings.Join(fragments, "\n")
}
