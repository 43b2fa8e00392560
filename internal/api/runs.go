package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	runid "github.com/JakeFAU/movie-ingest/internal/id/uuid"
	"github.com/JakeFAU/movie-ingest/internal/movie"
)

const trackerTimeout = 3 * time.Second

// RunsHandler exposes read-only views over tracked runs.
type RunsHandler struct {
	tracker movie.RunTracker
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the tracker and logger.
func NewRunsHandler(tracker movie.RunTracker, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		tracker: tracker,
		timeout: trackerTimeout,
		logger:  logger,
	}
}

// GetRun handles GET /v1/ingest/runs/{run_id}. It returns {"run": {...}} on
// success, 400 for malformed IDs, 404 when the tracker reports
// movie.ErrNotFound, 503 without a tracker, or 500 otherwise.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracker unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.tracker.GetRun(ctx, runID)
	h.writeRun(w, run, err)
}

// LatestRun handles GET /v1/ingest/runs/latest, the run a resume would continue.
func (h *RunsHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracker unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.tracker.LatestRun(ctx)
	h.writeRun(w, run, err)
}

func (h *RunsHandler) writeRun(w http.ResponseWriter, run movie.Run, err error) {
	if err != nil {
		if errors.Is(err, movie.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("load run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseRunID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if id == "" {
		return "", errors.New("run_id is required")
	}
	if !runid.Valid(id) {
		return "", errors.New("invalid run_id")
	}
	return id, nil
}
