// Package session keeps the state of one interactive bill conversation: the
// last structured bill and the questions asked about it. Nothing is persisted.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zombor/bill-assistant/internal/bill"
)

// ErrNoRecord is returned by Ask and Export before a bill has been structured
var ErrNoRecord = errors.New("no structured bill in session")

// Speaker identifies who said a turn
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Turn is a single message in the question-and-answer exchange
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Message string  `json:"message"`
}

// Structurer structures OCR text into a bill
type Structurer interface {
	Structure(ctx context.Context, ocrText string) (*bill.ExtractionResult, error)
}

// Answerer answers a question about a bill
type Answerer interface {
	Answer(ctx context.Context, record bill.BillRecord, question string) (string, error)
}

// Session holds the bill and exchange of one user
type Session struct {
	id         string
	structurer Structurer
	answerer   Answerer

	mu       sync.Mutex
	lastHash *[sha256.Size]byte
	result   *bill.ExtractionResult
	history  []Turn
}

// New creates an empty Session
func New(structurer Structurer, answerer Answerer) *Session {
	return &Session{
		id:         uuid.NewString(),
		structurer: structurer,
		answerer:   answerer,
	}
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Submit structures ocrText unless it is identical to the text of the last
// submission that produced a bill, in which case the previous result is
// returned and the bool is false. A new bill starts a new exchange.
func (s *Session) Submit(ctx context.Context, ocrText string) (*bill.ExtractionResult, bool, error) {
	hash := sha256.Sum256([]byte(ocrText))

	s.mu.Lock()
	if s.lastHash != nil && *s.lastHash == hash {
		result := s.result
		s.mu.Unlock()
		slog.Debug("OCR text unchanged, skipping structuring", "session_id", s.id)
		return result, false, nil
	}
	s.mu.Unlock()

	result, err := s.structurer.Structure(ctx, ocrText)
	if err != nil {
		return nil, true, fmt.Errorf("structuring bill: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.history = nil
	s.lastHash = nil
	if result.Parsed != nil {
		s.lastHash = &hash
	}
	return result, true, nil
}

// Record returns the structured bill, or nil if there is none yet
func (s *Session) Record() *bill.BillRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	return s.result.Parsed
}

// RawResponse returns the model text of the last structuring call
func (s *Session) RawResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return ""
	}
	return s.result.RawText
}

// Ask answers a question about the structured bill. Both the question and the
// answer are added to the history once the answer arrives; a failed call
// leaves the history unchanged.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	record := s.Record()
	if record == nil {
		return "", ErrNoRecord
	}

	answer, err := s.answerer.Answer(ctx, *record, question)
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	answer = strings.TrimSpace(answer)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Turn{Speaker: User, Message: question},
		Turn{Speaker: Assistant, Message: answer},
	)
	return answer, nil
}

// History returns a copy of the exchange so far
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Turn, len(s.history))
	copy(history, s.history)
	return history
}

// Export writes the structured bill as indented JSON
func (s *Session) Export(w io.Writer) error {
	record := s.Record()
	if record == nil {
		return ErrNoRecord
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bill: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing bill: %w", err)
	}
	return nil
}
