package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

const runColumns = `id, status, source_id, checkpoint_offset, processed, failed, started_at, finished_at, error_text`

// RunTracker persists ingest run progress in the ingest_runs table.
type RunTracker struct {
	pool pool
}

// NewRunTracker constructs a tracker on an existing pool.
func NewRunTracker(p pool) (*RunTracker, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunTracker{pool: p}, nil
}

// StartRun inserts a new run row.
func (t *RunTracker) StartRun(ctx context.Context, run movie.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ingest_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, '');
	`
	_, err := t.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SaveProgress updates the checkpoint and counters for a run.
func (t *RunTracker) SaveProgress(ctx context.Context, run movie.Run) error {
	query := `
		UPDATE ingest_runs
		SET status = $1, source_id = $2, checkpoint_offset = $3, processed = $4, failed = $5
		WHERE id = $6;
	`
	tag, err := t.pool.Exec(ctx, query,
		string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("failed to save run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", run.ID, movie.ErrNotFound)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (t *RunTracker) FinishRun(ctx context.Context, run movie.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	query := `
		UPDATE ingest_runs
		SET status = $1, source_id = $2, checkpoint_offset = $3, processed = $4, failed = $5,
			finished_at = $6, error_text = $7
		WHERE id = $8;
	`
	tag, err := t.pool.Exec(ctx, query,
		string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, finished, run.ErrorText, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", run.ID, movie.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (t *RunTracker) GetRun(ctx context.Context, runID string) (movie.Run, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ingest_runs WHERE id = $1;`, runID)
	return scanRun(row, runID)
}

// LatestRun returns the most recently started run.
func (t *RunTracker) LatestRun(ctx context.Context) (movie.Run, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ingest_runs ORDER BY started_at DESC LIMIT 1;`)
	return scanRun(row, "latest")
}

func scanRun(row pgx.Row, label string) (movie.Run, error) {
	var (
		run    movie.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&status,
		&run.SourceID,
		&run.Offset,
		&run.Processed,
		&run.Failed,
		&run.StartedAt,
		&run.FinishedAt,
		&run.ErrorText,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return movie.Run{}, fmt.Errorf("run %s: %w", label, movie.ErrNotFound)
		}
		return movie.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = movie.RunStatus(status)
	return run, nil
}
