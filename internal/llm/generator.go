// Package llm holds the text-completion backends used to structure bills and
// answer questions about them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable is wrapped by every error caused by the model backend
// being unreachable, timing out or answering with a non-success status.
var ErrUpstreamUnavailable = errors.New("llm upstream unavailable")

// Generator turns a prompt into model text
type Generator interface {
	// Generate sends the prompt and returns the raw model text
	Generate(ctx context.Context, prompt string) (string, error)
	// Close releases any resources held by the generator
	Close() error
}

// Config selects and configures a Generator
type Config struct {
	Provider    string // "ollama" or "gemini"
	OllamaURL   string
	OllamaModel string
	GeminiKey   string
	GeminiModel string
	Temperature float32
}

// New builds the Generator named by cfg.Provider
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.Temperature)
	case "gemini":
		return NewGemini(cfg.GeminiKey, cfg.GeminiModel, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (valid: ollama, gemini)", cfg.Provider)
	}
}
