// Package ingest drives a run over sitemap sources: it fetches, normalizes, and
// stores each detail page, tolerating per-item failures and advancing a
// resumable checkpoint.
package ingest

import (
	"time"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// Checkpoint is the resumable position of a run: the next URL index to process
// within SourceID. A zero Checkpoint starts from the first source. An empty
// SourceID with a positive Offset applies the offset to the first source.
type Checkpoint struct {
	SourceID string `json:"sourceId"`
	Offset   int    `json:"offset"`
}

// JobState is the observable state of the runner. It is owned by the runner
// and read through Runner.State.
type JobState struct {
	RunID              string          `json:"runId,omitempty"`
	Status             movie.RunStatus `json:"status"`
	Running            bool            `json:"running"`
	SourceID           string          `json:"sourceId,omitempty"`
	LastProcessedIndex int             `json:"lastProcessedIndex"`
	ProcessedCount     int             `json:"processedCount"`
	FailedCount        int             `json:"failedCount"`
	DuplicateCount     int             `json:"duplicateCount"`
	StartedAt          *time.Time      `json:"startedAt,omitempty"`
	FinishedAt         *time.Time      `json:"finishedAt,omitempty"`
}

// Outcome is the result class of one attempted URL.
type Outcome string

// Item outcomes.
const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Failure reasons attached to failed items and sources.
const (
	ReasonFetchFailed      = "fetch_failed"
	ReasonStoreFailed      = "store_failed"
	ReasonMissingID        = "missing_id"
	ReasonSourceUnreadable = "source_unreadable"
)

// ItemResult records what happened to one URL.
type ItemResult struct {
	SourceID string        `json:"sourceId"`
	Index    int           `json:"index"`
	URL      string        `json:"url"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	RecordID string        `json:"recordId,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`

	// interrupted items were cut short by cancellation and do not count as attempted.
	interrupted bool
}

// SourceResult records the outcome of loading one sitemap source.
type SourceResult struct {
	SourceID string `json:"sourceId"`
	URLs     int    `json:"urls"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes a finished run. It is always returned, even on abort.
type Report struct {
	RunID              string          `json:"runId"`
	Status             movie.RunStatus `json:"status"`
	ProcessedCount     int             `json:"processedCount"`
	FailedCount        int             `json:"failedCount"`
	DuplicateCount     int             `json:"duplicateCount"`
	LastProcessedIndex int             `json:"lastProcessedIndex"`
	Checkpoint         Checkpoint      `json:"checkpoint"`
	Items              []ItemResult    `json:"items,omitempty"`
	Sources            []SourceResult  `json:"sources,omitempty"`
	StartedAt          time.Time       `json:"startedAt"`
	FinishedAt         time.Time       `json:"finishedAt"`
	Error              string          `json:"error,omitempty"`

	// Err is the abort cause; nil for completed and canceled runs.
	Err error `json:"-"`
}

// Failures returns the failed item results.
func (r Report) Failures() []ItemResult {
	var out []ItemResult
	for _, item := range r.Items {
		if item.Outcome == OutcomeFailed {
			out = append(out, item)
		}
	}
	return out
}
