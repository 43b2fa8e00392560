package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// ResumePoint returns the checkpoint recorded by the most recently started run.
// With no prior run it returns the zero Checkpoint.
func ResumePoint(ctx context.Context, tracker movie.RunTracker) (Checkpoint, error) {
	if tracker == nil {
		return Checkpoint{}, nil
	}
	run, err := tracker.LatestRun(ctx)
	if err != nil {
		if errors.Is(err, movie.ErrNotFound) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, fmt.Errorf("load latest run: %w", err)
	}
	return Checkpoint{SourceID: run.SourceID, Offset: run.Offset}, nil
}
