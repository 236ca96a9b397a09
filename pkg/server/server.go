// Package server is a thin JSON adapter over pkg/engine: it decodes HTTP
// requests, calls the engine facade, and encodes the result, translating
// engine.Error kinds into HTTP status codes. It owns no domain logic.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/vectordb/vectordb/pkg/config"
	"github.com/vectordb/vectordb/pkg/engine"
)

// Version is the build version string reported by /ping and the CLI's
// version subcommand.
const Version = "0.1.0"

// Server wraps an engine.Engine with the HTTP surface described in the
// external interfaces section: health, collection create/list/get,
// document ingestion, search, and stats.
type Server struct {
	engine *engine.Engine
	cfg    *config.Config

	httpServer *http.Server
	started    time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New constructs a Server. Call ListenAndServe to start accepting
// connections.
func New(eng *engine.Engine, cfg *config.Config) *Server {
	return &Server{
		engine:  eng,
		cfg:     cfg,
		started: time.Now(),
	}
}

// ListenAndServe binds cfg.HTTPAddr and serves until the context is
// cancelled, at which point it performs a graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.buildRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", s.cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler returns the fully wrapped http.Handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", s.handleHealth)
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	mux.HandleFunc("/create_collection", s.handleCreateCollection)
	mux.HandleFunc("/api/v1/collections", s.handleCollections)
	mux.HandleFunc("/collections", s.handleCollections)
	mux.HandleFunc("/collections/", s.handleGetCollection)

	mux.HandleFunc("/add_document", s.handleAddDocument)
	mux.HandleFunc("/api/v1/documents", s.handleAddDocument)
	mux.HandleFunc("/add_documents", s.handleAddDocuments)
	mux.HandleFunc("/api/v1/documents/batch", s.handleAddDocuments)

	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	handler := s.corsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/ping" {
			log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				log.Printf("panic: %v\n%s", rec, buf[:n])
				s.writeError(w, http.StatusInternalServerError, "internal server error", fmt.Errorf("%v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// =============================================================================
// JSON helpers
// =============================================================================

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	maxSize := s.cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	body := io.LimitReader(r.Body, maxSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	s.errorCount.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
	})
	_ = err
}

// writeEngineError translates an engine error into its documented HTTP
// status, falling back to 500 for anything that didn't come from the
// engine.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	if engErr, ok := err.(*engine.Error); ok {
		s.writeError(w, engErr.HTTPStatus(), engErr.Error(), engErr)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error(), err)
}
