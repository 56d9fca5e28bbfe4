package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/bill-assistant/internal/llm"
	"github.com/zombor/bill-assistant/internal/prompt"
)

// ExtractionResult pairs the raw model text with the record recovered from
// it. Parsed is nil when extraction failed; Err then says why.
type ExtractionResult struct {
	RawText string      `json:"raw_response"`
	Parsed  *BillRecord `json:"parsed"`
	Err     error       `json:"-"`
}

// Service structures OCR text into bills and answers questions about them.
// It keeps no state between calls.
type Service struct {
	generator llm.Generator
}

// NewService creates a new Service backed by the given generator
func NewService(generator llm.Generator) *Service {
	return &Service{generator: generator}
}

// Structure asks the model to structure ocrText into a BillRecord.
//
// A reply that holds no usable JSON is not an error: the result carries the
// raw text with a nil Parsed. Errors are returned only when the prompt cannot
// be rendered or the model cannot be reached.
func (s *Service) Structure(ctx context.Context, ocrText string) (*ExtractionResult, error) {
	p, err := prompt.BillParsePrompt(ocrText)
	if err != nil {
		return nil, fmt.Errorf("building parse prompt: %w", err)
	}
	slog.Debug("Prompt sent to LLM", "template", prompt.BillParseName, "prompt", p)

	raw, err := s.generator.Generate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("structuring bill: %w", err)
	}

	result := &ExtractionResult{RawText: raw}
	record, err := ExtractJSON(raw)
	if err != nil {
		result.Err = err
		logExtractionFailure(err, raw)
		return result, nil
	}
	if record == nil {
		slog.Warn("LLM response holds a null bill")
		return result, nil
	}

	if mismatch := record.SchemaMismatch(); mismatch != nil {
		slog.Warn("Structured bill does not match schema", "error", mismatch)
	}
	result.Parsed = record
	return result, nil
}

// Answer asks the model a question about record. The model is instructed to
// answer only from the record; that is not verified.
func (s *Service) Answer(ctx context.Context, record BillRecord, question string) (string, error) {
	billJSON, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing bill: %w", err)
	}

	p, err := prompt.BillChatPrompt(string(billJSON), question)
	if err != nil {
		return "", fmt.Errorf("building chat prompt: %w", err)
	}

	answer, err := s.generator.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func logExtractionFailure(err error, raw string) {
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) && extractErr.Kind == MalformedJSON {
		slog.Warn("Failed to parse JSON from LLM response",
			"error", extractErr.Err,
			"candidate", extractErr.Candidate,
		)
		return
	}
	slog.Warn("No JSON found in LLM response", "response_length", len(raw))
}
