package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageSourceLoaded  Stage = "SOURCE_LOADED"
	StageSourceFailed  Stage = "SOURCE_FAILED"
	StageItemStored    Stage = "ITEM_STORED"
	StageItemDuplicate Stage = "ITEM_DUPLICATE"
	StageItemFailed    Stage = "ITEM_FAILED"
	StageCheckpoint    Stage = "CHECKPOINT"
)

// Event captures a single milestone of an ingest run.
type Event struct {
	// RunID identifies the run that emitted the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// SourceID names the sitemap document the event belongs to.
	SourceID string
	// Index is the position of the URL within its source, or the checkpoint offset.
	Index int
	// URL is the detail page for item events.
	URL string
	// RecordID is the movie ID for stored and duplicate items.
	RecordID string
	// Reason classifies failures (fetch_failed, store_failed, missing_id, source_unreadable).
	Reason string
	// Count carries the URL count for SOURCE_LOADED events.
	Count int
	// Dur captures item latency or total run time for run events.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceLoaded, StageSourceFailed, StageCheckpoint:
		if e.SourceID == "" {
			return fmt.Errorf("%s requires source id", e.Stage)
		}
	case StageItemStored, StageItemDuplicate:
		if e.URL == "" || e.RecordID == "" {
			return fmt.Errorf("%s requires url and record id", e.Stage)
		}
	case StageItemFailed:
		if e.URL == "" {
			return errors.New("item failure requires url")
		}
		if e.Reason == "" {
			return errors.New("item failure requires reason")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Index < 0 {
		return errors.New("index must be >= 0")
	}
	return nil
}
