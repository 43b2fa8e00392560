package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// RunTracker records ingest run progress in memory.
type RunTracker struct {
	mu    sync.RWMutex
	runs  map[string]movie.Run
	order []string
	now   func() time.Time
}

// NewRunTracker constructs a RunTracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{
		runs: make(map[string]movie.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// StartRun stores a new run.
func (t *RunTracker) StartRun(_ context.Context, run movie.Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.runs[run.ID]; exists {
		return fmt.Errorf("run %q already exists", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = t.now()
	}
	t.runs[run.ID] = run
	t.order = append(t.order, run.ID)
	return nil
}

// SaveProgress updates the checkpoint and counters of a running run.
func (t *RunTracker) SaveProgress(_ context.Context, run movie.Run) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored, ok := t.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %q: %w", run.ID, movie.ErrNotFound)
	}
	stored.Status = run.Status
	stored.SourceID = run.SourceID
	stored.Offset = run.Offset
	stored.Processed = run.Processed
	stored.Failed = run.Failed
	t.runs[run.ID] = stored
	return nil
}

// FinishRun records the terminal state of a run.
func (t *RunTracker) FinishRun(ctx context.Context, run movie.Run) error {
	if err := t.SaveProgress(ctx, run); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := t.runs[run.ID]
	finished := t.now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	stored.FinishedAt = &finished
	stored.ErrorText = run.ErrorText
	t.runs[run.ID] = stored
	return nil
}

// GetRun fetches a run by ID.
func (t *RunTracker) GetRun(_ context.Context, runID string) (movie.Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return movie.Run{}, fmt.Errorf("run %q: %w", runID, movie.ErrNotFound)
	}
	return cloneRun(run), nil
}

// LatestRun returns the most recently started run.
func (t *RunTracker) LatestRun(_ context.Context) (movie.Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.order) == 0 {
		return movie.Run{}, movie.ErrNotFound
	}
	return cloneRun(t.runs[t.order[len(t.order)-1]]), nil
}

func cloneRun(r movie.Run) movie.Run {
	if r.FinishedAt != nil {
		ts := *r.FinishedAt
		r.FinishedAt = &ts
	}
	return r
}
