package bill

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-assistant/internal/ocr"
)

// Server exposes the bill service over HTTP. It holds no per-client state:
// callers send the structured bill back with every question.
type Server struct {
	service    *Service
	recognizer ocr.Recognizer
	timeout    time.Duration
	mux        *http.ServeMux
}

// NewServer creates a new Server with default mux. timeout bounds each model
// call; zero disables it.
func NewServer(service *Service, recognizer ocr.Recognizer, timeout time.Duration) *Server {
	return NewServerWithMux(service, recognizer, timeout, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, recognizer ocr.Recognizer, timeout time.Duration, mux *http.ServeMux) *Server {
	s := &Server{
		service:    service,
		recognizer: recognizer,
		timeout:    timeout,
		mux:        mux,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/bills/structure", s.handleStructure)
	s.mux.HandleFunc("POST /api/bills/answer", s.handleAnswer)
	s.mux.HandleFunc("POST /api/bills/scan", s.handleScan)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs its outcome
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Info("Request handled",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// modelContext bounds a model call by the server timeout
func (s *Server) modelContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

// Handler returns the mux wrapped with logging and CORS middleware
func (s *Server) Handler() http.Handler {
	return requestLogger(corsMiddleware(s.mux))
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. In-flight requests get a grace period on shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
