package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/config"
	"github.com/JakeFAU/movie-ingest/internal/dispatcher"
	"github.com/JakeFAU/movie-ingest/internal/ingest"
	"github.com/JakeFAU/movie-ingest/internal/metrics"
	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// Controller starts, cancels and reports on background runs.
type Controller interface {
	Start(start ingest.Checkpoint) (string, error)
	Cancel() bool
	Status() dispatcher.Status
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the run controller and tracker.
type Server struct {
	router  chi.Router
	control Controller
	tracker movie.RunTracker
	ready   ReadyFunc
	cfg     config.Config
	logger  *zap.Logger
}

const readyTimeout = 2 * time.Second

// NewServer constructs a Server with middleware and routes. tracker and ready
// may be nil.
func NewServer(
	control Controller,
	tracker movie.RunTracker,
	ready ReadyFunc,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		control: control,
		tracker: tracker,
		ready:   ready,
		cfg:     cfg,
		logger:  logger,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	runs := NewRunsHandler(tracker, logger)
	r.Route("/v1/ingest", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/runs", s.startRun)
		r.Get("/runs/latest", runs.LatestRun)
		r.Get("/runs/{run_id}", runs.GetRun)
		r.Get("/status", s.status)
		r.Post("/cancel", s.cancel)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startRunRequest struct {
	SourceID string `json:"source_id"`
	Offset   *int   `json:"offset"`
	Resume   bool   `json:"resume"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	start, err := s.startPoint(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, errBadStart) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	runID, err := s.control.Start(start)
	if err != nil {
		if errors.Is(err, dispatcher.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  err.Error(),
				"run_id": s.control.Status().State.RunID,
			})
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":     runID,
		"checkpoint": start,
	})
}

var errBadStart = errors.New("invalid start point")

// startPoint resolves the request to a checkpoint. resume wins over explicit
// source and offset values.
func (s *Server) startPoint(ctx context.Context, req startRunRequest) (ingest.Checkpoint, error) {
	if req.Resume {
		if req.SourceID != "" || req.Offset != nil {
			return ingest.Checkpoint{}, fmt.Errorf("%w: resume cannot be combined with source_id or offset", errBadStart)
		}
		if s.tracker == nil {
			return ingest.Checkpoint{}, fmt.Errorf("%w: resume requires a run tracker", errBadStart)
		}
		cp, err := ingest.ResumePoint(ctx, s.tracker)
		if err != nil {
			return ingest.Checkpoint{}, fmt.Errorf("resolve resume point: %w", err)
		}
		return cp, nil
	}
	cp := ingest.Checkpoint{SourceID: req.SourceID}
	if req.Offset != nil {
		if *req.Offset < 0 {
			return ingest.Checkpoint{}, fmt.Errorf("%w: offset must be >= 0", errBadStart)
		}
		cp.Offset = *req.Offset
	}
	return cp, nil
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Status())
}

func (s *Server) cancel(w http.ResponseWriter, _ *http.Request) {
	if !s.control.Cancel() {
		writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	state := s.control.Status().State
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": state.RunID, "status": "canceling"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
