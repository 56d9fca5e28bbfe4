package bill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/bill-assistant/internal/llm"
	"github.com/zombor/bill-assistant/internal/ocr"
)

// Error kinds reported in error responses
const (
	KindBadRequest          = "BadRequest"
	KindUpstreamUnavailable = "UpstreamUnavailable"
	KindInternal            = "Internal"
)

// maxUploadSize bounds scanned images (phone photos can be large)
const maxUploadSize = int64(50 << 20)

// maxJSONBodySize bounds structure and answer request bodies
const maxJSONBodySize = int64(5 << 20)

type structureRequest struct {
	OCRText *string `json:"ocr_text"`
}

type answerRequest struct {
	Record   json.RawMessage `json:"record"`
	Question string          `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type scanResponse struct {
	OCRText string `json:"ocr_text"`
	*ExtractionResult
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an error response of the given kind
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// writeServiceError maps a service error to a status code and kind. Nothing
// is written when the client has gone away.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		slog.Info("Client closed request", "path", r.URL.Path)
	case errors.Is(err, llm.ErrUpstreamUnavailable),
		errors.Is(err, ocr.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, KindUpstreamUnavailable, err.Error())
	case errors.Is(err, ocr.ErrUnsupportedImage):
		writeError(w, http.StatusBadRequest, KindBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, KindInternal, "Internal server error")
	}
}

// decodeJSON decodes a JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// handleStructure structures OCR text into a bill
func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	var req structureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "Invalid request body")
		return
	}
	if req.OCRText == nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "ocr_text is required")
		return
	}

	ctx, cancel := s.modelContext(r)
	defer cancel()

	result, err := s.service.Structure(ctx, *req.OCRText)
	if err != nil {
		slog.Error("Error structuring bill", "error", err)
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAnswer answers a question about a bill supplied by the caller
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "Invalid request body")
		return
	}

	raw := bytes.TrimSpace(req.Record)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		writeError(w, http.StatusBadRequest, KindBadRequest, "record is required")
		return
	}
	if raw[0] != '{' {
		writeError(w, http.StatusBadRequest, KindBadRequest, "record must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, KindBadRequest, "question is required")
		return
	}

	var record BillRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "record must be a JSON object")
		return
	}

	ctx, cancel := s.modelContext(r)
	defer cancel()

	answer, err := s.service.Answer(ctx, record, req.Question)
	if err != nil {
		slog.Error("Error answering question", "error", err)
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{Answer: answer})
}

// handleScan runs OCR on an uploaded bill image and structures the text
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.recognizer == nil {
		writeError(w, http.StatusNotImplemented, KindInternal, "OCR is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, KindBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, KindInternal, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, err := s.recognize(r, data, contentType)
	if err != nil {
		slog.Error("Error recognizing bill text",
			"filename", header.Filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		writeServiceError(w, r, err)
		return
	}

	ctx, cancel := s.modelContext(r)
	defer cancel()

	result, err := s.service.Structure(ctx, text)
	if err != nil {
		slog.Error("Error structuring bill", "filename", header.Filename, "error", err)
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{OCRText: text, ExtractionResult: result})
}

// recognize runs OCR under its own timeout
func (s *Server) recognize(r *http.Request, data []byte, contentType string) (string, error) {
	ctx, cancel := s.modelContext(r)
	defer cancel()
	return s.recognizer.Recognize(ctx, data, contentType)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
