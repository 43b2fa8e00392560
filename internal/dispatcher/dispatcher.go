// Package dispatcher launches ingest runs in the background, one at a time.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/ingest"
	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// ErrRunInProgress is returned by Start while a previous run is still active.
var ErrRunInProgress = errors.New("ingest run in progress")

// Runner is the subset of *ingest.Runner the dispatcher drives.
type Runner interface {
	RunWithID(ctx context.Context, runID string, start ingest.Checkpoint) ingest.Report
	State() ingest.JobState
}

// Status is the dispatcher's view of the current or last run.
type Status struct {
	State      ingest.JobState `json:"state"`
	LastReport *ingest.Report  `json:"lastReport,omitempty"`
}

// Dispatcher owns the lifecycle of background runs.
type Dispatcher struct {
	runner Runner
	ids    movie.IDGenerator
	logger *zap.Logger

	// base is the parent of every run context; Shutdown cancels it.
	base     context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    *ingest.Report
	running bool
}

// New creates a Dispatcher.
func New(runner Runner, ids movie.IDGenerator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:   runner,
		ids:      ids,
		logger:   logger,
		base:     base,
		shutdown: shutdown,
	}
}

// Start launches a run from start and returns its ID without waiting for it.
func (d *Dispatcher) Start(start ingest.Checkpoint) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return "", ErrRunInProgress
	}
	if err := d.base.Err(); err != nil {
		return "", fmt.Errorf("dispatcher stopped: %w", err)
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	ctx, cancel := context.WithCancel(d.base)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.running = true

	go func() {
		defer close(done)
		defer cancel()
		rep := d.runner.RunWithID(ctx, runID, start)
		if rep.Err != nil {
			d.logger.Warn("background run ended early",
				zap.String("run_id", runID),
				zap.String("status", string(rep.Status)),
				zap.Error(rep.Err))
		}
		d.mu.Lock()
		d.last = &rep
		d.running = false
		d.cancel = nil
		d.mu.Unlock()
	}()
	return runID, nil
}

// Cancel stops the active run. It reports whether a run was active.
func (d *Dispatcher) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.cancel == nil {
		return false
	}
	d.cancel()
	return true
}

// Status returns the live job state and the report of the last finished run.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	var last *ingest.Report
	if d.last != nil {
		rep := *d.last
		last = &rep
	}
	d.mu.Unlock()
	return Status{State: d.runner.State(), LastReport: last}
}

// Wait blocks until the active run, if any, finishes or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for run: %w", ctx.Err())
	}
}

// Shutdown cancels any active run, refuses new ones, and waits for the active
// run to flush its checkpoint.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdown()
	return d.Wait(ctx)
}
