package movie

import (
	"context"
	"time"
)

// SitemapSource loads the ordered movie-detail URLs of one sitemap document.
type SitemapSource interface {
	Load(ctx context.Context, sourceID string) ([]string, error)
}

// SourceEnumerator lists sitemap source IDs in their fixed traversal order.
type SourceEnumerator interface {
	Sources(ctx context.Context) ([]string, error)
}

// Fetcher scrapes a detail page into raw field values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawFields, error)
}

// Store persists records with insert-if-absent semantics keyed by ID.
type Store interface {
	// Upsert inserts the record unless a row with the same ID exists. inserted is
	// false when the row was already present.
	Upsert(ctx context.Context, record Record) (inserted bool, err error)
	Get(ctx context.Context, id string) (Record, error)
	Count(ctx context.Context) (int, error)
}

// RunTracker persists run progress so a later run can resume.
type RunTracker interface {
	StartRun(ctx context.Context, run Run) error
	SaveProgress(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	// LatestRun returns the most recently started run or ErrNotFound.
	LatestRun(ctx context.Context) (Run, error)
}

// Limiter paces outbound requests against the scraped origin.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Publisher pushes notifications about stored records.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
