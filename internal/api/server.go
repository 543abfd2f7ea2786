// Package api exposes the HTTP review surface over the report catalog.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reportwatch/internal/metrics"
	"reportwatch/internal/watch"
)

// RunReporter surfaces the most recent pipeline run, nil before the first.
type RunReporter interface {
	LastRun() *watch.RunSummary
}

// Server wires HTTP handlers to the catalog store and the pipeline's run
// summary. The pipeline itself never goes through this surface; reads and
// read-state flips belong to the review UI and exports.
type Server struct {
	router  chi.Router
	catalog watch.CatalogStore
	runs    RunReporter
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(catalog watch.CatalogStore, runs RunReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{catalog: catalog, runs: runs, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Route("/{report_id}", func(r chi.Router) {
				r.Post("/read", s.markRead)
				r.Post("/unread", s.markUnread)
			})
		})
		r.Get("/runs/last", s.lastRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The catalog is the only downstream a reader depends on.
	if _, err := s.catalog.List(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if r.URL.Query().Get("unread") == "true" {
		unread := entries[:0]
		for _, e := range entries {
			if !e.IsRead {
				unread = append(unread, e)
			}
		}
		entries = unread
	}
	if entries == nil {
		entries = []watch.CatalogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": entries, "count": len(entries)})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	s.setRead(w, r, true)
}

func (s *Server) markUnread(w http.ResponseWriter, r *http.Request) {
	s.setRead(w, r, false)
}

func (s *Server) setRead(w http.ResponseWriter, r *http.Request, read bool) {
	id := chi.URLParam(r, "report_id")
	if err := s.catalog.SetRead(r.Context(), id, read); err != nil {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_read": read})
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	last := s.runs.LastRun()
	if last == nil {
		s.writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, last)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
