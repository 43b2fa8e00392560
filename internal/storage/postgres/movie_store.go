package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

const insertMovieSQL = `
INSERT INTO movies (
	id,
	title,
	genre,
	quality,
	rating,
	overview,
	released,
	casts,
	duration,
	country,
	thumbnail_url,
	background_url,
	watch_link,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()
)
ON CONFLICT (id) DO NOTHING`

const selectMovieSQL = `
SELECT id, title, genre, quality, rating, overview, released, casts, duration,
	country, thumbnail_url, background_url, watch_link
FROM movies
WHERE id = $1`

// MovieStore writes movie rows into Postgres with insert-if-absent semantics.
type MovieStore struct {
	pool pool
}

// NewMovieStore constructs a store on an existing pool.
func NewMovieStore(p pool) (*MovieStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MovieStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *MovieStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts the record unless a row with its ID already exists.
func (s *MovieStore) Upsert(ctx context.Context, r movie.Record) (bool, error) {
	if !r.Persistable() {
		return false, fmt.Errorf("%w: %w", movie.ErrStoreFailed, movie.ErrMissingID)
	}
	tag, err := s.pool.Exec(ctx, insertMovieSQL,
		r.ID,
		r.Title,
		r.Genre,
		r.Quality,
		r.Rating,
		r.Overview,
		r.Released,
		r.Casts,
		r.Duration,
		r.Country,
		r.ThumbnailURL,
		r.BackgroundURL,
		r.WatchLink,
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert movie %q: %w", movie.ErrStoreFailed, r.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get loads one movie by ID.
func (s *MovieStore) Get(ctx context.Context, id string) (movie.Record, error) {
	var r movie.Record
	err := s.pool.QueryRow(ctx, selectMovieSQL, id).Scan(
		&r.ID,
		&r.Title,
		&r.Genre,
		&r.Quality,
		&r.Rating,
		&r.Overview,
		&r.Released,
		&r.Casts,
		&r.Duration,
		&r.Country,
		&r.ThumbnailURL,
		&r.BackgroundURL,
		&r.WatchLink,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return movie.Record{}, fmt.Errorf("movie %q: %w", id, movie.ErrNotFound)
		}
		return movie.Record{}, fmt.Errorf("get movie: %w", err)
	}
	return r, nil
}

// Count returns the number of stored movies.
func (s *MovieStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return n, nil
}
