// Package movie defines the canonical record and the collaborator contracts
// shared by the ingestion subsystems.
package movie

import "time"

// UnknownID marks a record whose source page exposed no identifier.
const UnknownID = "N/A"

// Raw field keys produced by a Fetcher. They mirror the canonical record fields.
const (
	FieldID            = "id"
	FieldTitle         = "title"
	FieldGenre         = "genre"
	FieldQuality       = "quality"
	FieldRating        = "rating"
	FieldOverview      = "overview"
	FieldReleased      = "released"
	FieldCasts         = "casts"
	FieldDuration      = "duration"
	FieldCountry       = "country"
	FieldThumbnailURL  = "thumbnailUrl"
	FieldBackgroundURL = "backgroundUrl"
	FieldWatchLink     = "watchLink"
)

// RawFields is the bag of optional string values scraped from a detail page.
// A missing key means the page did not expose the field.
type RawFields map[string]string

// Get returns the value for key and whether it was present and non-blank.
func (f RawFields) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Record is the normalized, store-ready representation of one movie.
type Record struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Genre         string `json:"genre"`
	Quality       string `json:"quality"`
	Rating        string `json:"rating"`
	Overview      string `json:"overview"`
	Released      string `json:"released"`
	Casts         string `json:"casts"`
	Duration      *int   `json:"duration"`
	Country       string `json:"country"`
	ThumbnailURL  string `json:"thumbnailUrl"`
	BackgroundURL string `json:"backgroundUrl"`
	WatchLink     string `json:"watchLink"`
}

// Persistable reports whether the record carries an identifier the store can
// deduplicate on.
func (r Record) Persistable() bool {
	return r.ID != "" && r.ID != UnknownID
}

// RunStatus is the lifecycle state of an ingest run.
type RunStatus string

// Run status values persisted by run trackers.
const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
	RunCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunAborted, RunCanceled:
		return true
	default:
		return false
	}
}

// Run is the persisted progress row for one ingest run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	SourceID   string     `json:"source_id"`
	Offset     int        `json:"offset"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
}
