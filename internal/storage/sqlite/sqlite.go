// Package sqlite provides a single-file SQLite backend for movies and ingest runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/movie"
	"github.com/JakeFAU/movie-ingest/internal/storage/migrations"
)

// Open creates the parent directory, opens the database, and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := migrations.Open(migrations.SQLite, path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)

	m, err := migrations.New(db, migrations.SQLite, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := m.Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// MovieStore writes movie rows with insert-if-absent semantics.
type MovieStore struct {
	db *sql.DB
}

// NewMovieStore wraps an open database.
func NewMovieStore(db *sql.DB) *MovieStore {
	return &MovieStore{db: db}
}

// Upsert inserts the record unless a row with its ID already exists.
func (s *MovieStore) Upsert(ctx context.Context, r movie.Record) (bool, error) {
	if !r.Persistable() {
		return false, fmt.Errorf("%w: %w", movie.ErrStoreFailed, movie.ErrMissingID)
	}
	query := `
	INSERT INTO movies (id, title, genre, quality, rating, overview, released, casts, duration,
		country, thumbnail_url, background_url, watch_link, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		r.ID, r.Title, r.Genre, r.Quality, r.Rating, r.Overview, r.Released, r.Casts, r.Duration,
		r.Country, r.ThumbnailURL, r.BackgroundURL, r.WatchLink)
	if err != nil {
		return false, fmt.Errorf("%w: insert movie %q: %w", movie.ErrStoreFailed, r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", movie.ErrStoreFailed, err)
	}
	return n > 0, nil
}

// Get loads one movie by ID.
func (s *MovieStore) Get(ctx context.Context, id string) (movie.Record, error) {
	query := `
	SELECT id, title, genre, quality, rating, overview, released, casts, duration,
		country, thumbnail_url, background_url, watch_link
	FROM movies WHERE id = ?
	`
	var r movie.Record
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Title, &r.Genre, &r.Quality, &r.Rating, &r.Overview, &r.Released, &r.Casts,
		&r.Duration, &r.Country, &r.ThumbnailURL, &r.BackgroundURL, &r.WatchLink,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return movie.Record{}, fmt.Errorf("movie %q: %w", id, movie.ErrNotFound)
		}
		return movie.Record{}, fmt.Errorf("get movie: %w", err)
	}
	return r, nil
}

// Count returns the number of stored movies.
func (s *MovieStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return n, nil
}

// RunTracker persists ingest runs in the ingest_runs table.
type RunTracker struct {
	db *sql.DB
}

// NewRunTracker wraps an open database.
func NewRunTracker(db *sql.DB) *RunTracker {
	return &RunTracker{db: db}
}

// StartRun inserts a new run row.
func (t *RunTracker) StartRun(ctx context.Context, run movie.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx, `
	INSERT INTO ingest_runs (id, status, source_id, checkpoint_offset, processed, failed, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SaveProgress updates the checkpoint and counters of a run.
func (t *RunTracker) SaveProgress(ctx context.Context, run movie.Run) error {
	res, err := t.db.ExecContext(ctx, `
	UPDATE ingest_runs
	SET status = ?, source_id = ?, checkpoint_offset = ?, processed = ?, failed = ?
	WHERE id = ?
	`, string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("failed to save run progress: %w", err)
	}
	return requireRow(res, run.ID)
}

// FinishRun records the terminal state of a run.
func (t *RunTracker) FinishRun(ctx context.Context, run movie.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	res, err := t.db.ExecContext(ctx, `
	UPDATE ingest_runs
	SET status = ?, source_id = ?, checkpoint_offset = ?, processed = ?, failed = ?,
		finished_at = ?, error_text = ?
	WHERE id = ?
	`, string(run.Status), run.SourceID, run.Offset, run.Processed, run.Failed, finished, run.ErrorText, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireRow(res, run.ID)
}

// GetRun fetches a run by ID.
func (t *RunTracker) GetRun(ctx context.Context, runID string) (movie.Run, error) {
	row := t.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID)
	return scanRun(row, runID)
}

// LatestRun returns the most recently started run.
func (t *RunTracker) LatestRun(ctx context.Context) (movie.Run, error) {
	row := t.db.QueryRowContext(ctx, selectRun+` ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	return scanRun(row, "latest")
}

const selectRun = `
	SELECT id, status, source_id, checkpoint_offset, processed, failed, started_at, finished_at, error_text
	FROM ingest_runs`

func scanRun(row *sql.Row, label string) (movie.Run, error) {
	var (
		run    movie.Run
		status string
	)
	err := row.Scan(&run.ID, &status, &run.SourceID, &run.Offset, &run.Processed, &run.Failed,
		&run.StartedAt, &run.FinishedAt, &run.ErrorText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return movie.Run{}, fmt.Errorf("run %s: %w", label, movie.ErrNotFound)
		}
		return movie.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = movie.RunStatus(status)
	return run, nil
}

func requireRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q: %w", runID, movie.ErrNotFound)
	}
	return nil
}
