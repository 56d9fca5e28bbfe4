package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama implements the Generator interface using a local Ollama server
type Ollama struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// NewOllama creates a new Ollama Generator instance.
// The client has no timeout of its own; callers bound each call through the
// context they pass to Generate.
func NewOllama(baseURL string, modelName string, temperature float32) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.1:8b"
	}

	return &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       modelName,
		temperature: temperature,
		client:      &http.Client{},
	}, nil
}

// ollamaGenerateRequest represents the request body for Ollama's generate API
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaGenerateResponse represents the response from Ollama's generate API
type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt to Ollama and returns the completion text
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": o.temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling ollama API: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama API error (status %d): %s", ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decoding ollama response: %w", ErrUpstreamUnavailable, err)
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", ErrUpstreamUnavailable, genResp.Error)
	}

	return genResp.Response, nil
}

// Model returns the model name sent with every request
func (o *Ollama) Model() string {
	return o.model
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
