package bill

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ExtractionErrorKind classifies why no record could be recovered
type ExtractionErrorKind int

const (
	// NoJSONFound means the text had neither a json fence nor a brace span
	NoJSONFound ExtractionErrorKind = iota + 1
	// MalformedJSON means a candidate was found but did not decode
	MalformedJSON
)

func (k ExtractionErrorKind) String() string {
	switch k {
	case NoJSONFound:
		return "NoJsonFound"
	case MalformedJSON:
		return "MalformedJson"
	default:
		return fmt.Sprintf("ExtractionErrorKind(%d)", int(k))
	}
}

// ExtractionError is returned by ExtractJSON
type ExtractionError struct {
	Kind ExtractionErrorKind
	// Candidate is the substring that failed to decode, exactly as it
	// appeared in the model output. Empty for NoJSONFound.
	Candidate string
	Err       error
}

func (e *ExtractionError) Error() string {
	if e.Kind == NoJSONFound {
		return "no JSON found in LLM response"
	}
	return fmt.Sprintf("failed to parse JSON: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	// greedy: first opening brace through the last closing brace
	braceSpan = regexp.MustCompile(`(?s)(\{.*\})`)
)

// ExtractJSON recovers the bill JSON embedded in free-form model output.
//
// A fenced block labelled json wins. Otherwise the span from the first "{"
// to the last "}" is used, which swallows any unrelated braces that follow
// the real object. The result is not checked against the bill schema.
// A candidate that is the JSON literal null yields a nil record and no error.
func ExtractJSON(raw string) (*BillRecord, error) {
	candidate, ok := findCandidate(raw)
	if !ok {
		return nil, &ExtractionError{Kind: NoJSONFound}
	}

	var record BillRecord
	if err := json.Unmarshal([]byte(candidate), &record); err != nil {
		return nil, &ExtractionError{Kind: MalformedJSON, Candidate: candidate, Err: err}
	}
	if bytes.Equal(record.Raw(), []byte("null")) {
		return nil, nil
	}
	return &record, nil
}

func findCandidate(raw string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := braceSpan.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}

// IsNoJSONFound reports whether err is an extraction error of kind NoJSONFound
func IsNoJSONFound(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e) && e.Kind == NoJSONFound
}

// IsMalformedJSON reports whether err is an extraction error of kind MalformedJSON
func IsMalformedJSON(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e) && e.Kind == MalformedJSON
}
