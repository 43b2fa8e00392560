package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/clock/system"
	runid "github.com/JakeFAU/movie-ingest/internal/id/uuid"
	"github.com/JakeFAU/movie-ingest/internal/metrics"
	"github.com/JakeFAU/movie-ingest/internal/movie"
	"github.com/JakeFAU/movie-ingest/internal/normalize"
	"github.com/JakeFAU/movie-ingest/internal/progress"
)

// ErrAlreadyRunning is returned when Run is called while another run is active on the same Runner.
var ErrAlreadyRunning = errors.New("ingest run already in progress")

// ErrUnknownSource is returned when a checkpoint names a source the enumerator does not list.
var ErrUnknownSource = errors.New("checkpoint source not found")

const defaultStoreTimeout = 30 * time.Second

// Config tunes the runner.
type Config struct {
	// Workers bounds concurrent item processing. Values below 1 mean 1.
	Workers int
	// StoreTimeout bounds an upsert once its fetch has succeeded. The upsert is
	// detached from run cancellation so a fetched record is committed or not at all.
	StoreTimeout time.Duration
}

// Deps are the runner's collaborators. Tracker, Limiter, Emitter, IDs, Clock and
// Logger are optional.
type Deps struct {
	Sources movie.SourceEnumerator
	Sitemap movie.SitemapSource
	Fetcher movie.Fetcher
	Store   movie.Store
	Limiter movie.Limiter
	Tracker movie.RunTracker
	Emitter progress.Emitter
	IDs     movie.IDGenerator
	Clock   movie.Clock
	Logger  *zap.Logger
}

// Runner executes ingest runs. A Runner processes one run at a time.
type Runner struct {
	deps Deps
	cfg  Config

	mu    sync.RWMutex
	state JobState
}

// New validates deps and returns a Runner in the idle state.
func New(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("ingest: source enumerator is required")
	case deps.Sitemap == nil:
		return nil, errors.New("ingest: sitemap source is required")
	case deps.Fetcher == nil:
		return nil, errors.New("ingest: fetcher is required")
	case deps.Store == nil:
		return nil, errors.New("ingest: store is required")
	}
	if deps.Limiter == nil {
		deps.Limiter = noLimit{}
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.IDs == nil {
		deps.IDs = runid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &Runner{deps: deps, cfg: cfg, state: JobState{Status: movie.RunIdle}}, nil
}

// State returns a snapshot of the job state.
func (r *Runner) State() JobState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.state
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		s.FinishedAt = &t
	}
	return s
}

// Run processes every source from start until the sources are exhausted, the
// context is canceled, or an orchestration step fails. It always returns a
// report; Report.Err carries the abort cause.
func (r *Runner) Run(ctx context.Context, start Checkpoint) Report {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return r.reject(start, fmt.Errorf("generate run id: %w", err))
	}
	return r.RunWithID(ctx, runID, start)
}

// RunWithID is Run with a caller-assigned run ID, for launchers that must hand
// the ID back before the run finishes.
func (r *Runner) RunWithID(ctx context.Context, runID string, start Checkpoint) Report {
	if start.Offset < 0 {
		start.Offset = 0
	}
	if runID == "" {
		return r.reject(start, errors.New("run id is required"))
	}
	if !r.begin(runID, start) {
		return r.reject(start, ErrAlreadyRunning)
	}

	rs := &runState{
		runner: r,
		logger: r.deps.Logger.With(zap.String("run_id", runID)),
		report: Report{
			RunID:              runID,
			Status:             movie.RunRunning,
			LastProcessedIndex: start.Offset,
			Checkpoint:         start,
			StartedAt:          r.deps.Clock.Now(),
		},
	}
	rs.emit(progress.Event{Stage: progress.StageRunStart, SourceID: start.SourceID, Index: start.Offset})
	rs.logger.Info("ingest run started", zap.String("source_id", start.SourceID), zap.Int("offset", start.Offset))

	if r.deps.Tracker != nil {
		if err := r.deps.Tracker.StartRun(ctx, rs.trackedRun()); err != nil {
			rs.trackerFailed = true
			rs.abort(fmt.Errorf("start run tracking: %w", err))
			return r.finish(ctx, rs)
		}
	}

	rs.err = rs.runSources(ctx, start)
	return r.finish(ctx, rs)
}

func (r *Runner) begin(runID string, start Checkpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Running {
		return false
	}
	now := r.deps.Clock.Now()
	r.state = JobState{
		RunID:              runID,
		Status:             movie.RunRunning,
		Running:            true,
		SourceID:           start.SourceID,
		LastProcessedIndex: start.Offset,
		StartedAt:          &now,
	}
	metrics.SetCheckpoint(start.Offset)
	return true
}

func (r *Runner) reject(start Checkpoint, err error) Report {
	now := r.deps.Clock.Now()
	return Report{
		Status:             movie.RunAborted,
		LastProcessedIndex: start.Offset,
		Checkpoint:         start,
		StartedAt:          now,
		FinishedAt:         now,
		Error:              err.Error(),
		Err:                err,
	}
}

func (r *Runner) finish(ctx context.Context, rs *runState) Report {
	rep := &rs.report
	rep.FinishedAt = r.deps.Clock.Now()
	switch {
	case rs.err != nil:
		rep.Status = movie.RunAborted
		rep.Err = rs.err
		rep.Error = rs.err.Error()
	case ctx.Err() != nil:
		rep.Status = movie.RunCanceled
	default:
		rep.Status = movie.RunCompleted
	}

	r.mu.Lock()
	finished := rep.FinishedAt
	r.state.Running = false
	r.state.Status = rep.Status
	r.state.FinishedAt = &finished
	r.mu.Unlock()

	if r.deps.Tracker != nil && !rs.trackerFailed {
		// The run context may already be canceled; the final row must still land.
		trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
		if err := r.deps.Tracker.FinishRun(trackCtx, rs.trackedRun()); err != nil {
			rs.logger.Error("failed to record run completion", zap.Error(err))
		}
		cancel()
	}

	evt := progress.Event{
		Stage:    progress.StageRunDone,
		SourceID: rep.Checkpoint.SourceID,
		Index:    rep.Checkpoint.Offset,
		Dur:      rep.FinishedAt.Sub(rep.StartedAt),
	}
	if rep.Status != movie.RunCompleted {
		evt.Stage = progress.StageRunError
		evt.Reason = string(rep.Status)
		evt.Note = rep.Error
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	rs.emit(evt)

	fields := []zap.Field{
		zap.String("status", string(rep.Status)),
		zap.Int("processed", rep.ProcessedCount),
		zap.Int("failed", rep.FailedCount),
		zap.Int("duplicates", rep.DuplicateCount),
		zap.String("source_id", rep.Checkpoint.SourceID),
		zap.Int("offset", rep.Checkpoint.Offset),
	}
	if rep.Err != nil {
		rs.logger.Error("ingest run aborted", append(fields, zap.Error(rep.Err))...)
	} else {
		rs.logger.Info("ingest run finished", fields...)
	}
	return *rep
}

// runState is the per-run bookkeeping owned by the goroutine calling Run.
type runState struct {
	runner        *Runner
	logger        *zap.Logger
	report        Report
	err           error
	trackerFailed bool
}

func (rs *runState) abort(err error) {
	if rs.err == nil {
		rs.err = err
	}
}

func (rs *runState) emit(evt progress.Event) {
	evt.RunID = rs.report.RunID
	evt.TS = rs.runner.deps.Clock.Now()
	rs.runner.deps.Emitter.Emit(evt)
}

func (rs *runState) trackedRun() movie.Run {
	rep := rs.report
	run := movie.Run{
		ID:        rep.RunID,
		Status:    rep.Status,
		SourceID:  rep.Checkpoint.SourceID,
		Offset:    rep.Checkpoint.Offset,
		Processed: rep.ProcessedCount,
		Failed:    rep.FailedCount,
		StartedAt: rep.StartedAt,
		ErrorText: rep.Error,
	}
	if !rep.FinishedAt.IsZero() {
		finished := rep.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}

func (rs *runState) runSources(ctx context.Context, start Checkpoint) error {
	deps := rs.runner.deps
	sources, err := deps.Sources.Sources(ctx)
	if err != nil {
		return fmt.Errorf("enumerate sources: %w", err)
	}
	first := 0
	if start.SourceID != "" {
		first = -1
		for i, id := range sources {
			if id == start.SourceID {
				first = i
				break
			}
		}
		if first < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSource, start.SourceID)
		}
	}

	for i := first; i < len(sources); i++ {
		if ctx.Err() != nil {
			return nil
		}
		sourceID := sources[i]
		offset := 0
		if i == first {
			offset = start.Offset
		}
		if err := rs.moveTo(ctx, sourceID, offset); err != nil {
			return err
		}

		urls, err := deps.Sitemap.Load(ctx, sourceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			rs.report.Sources = append(rs.report.Sources, SourceResult{SourceID: sourceID, Error: err.Error()})
			rs.emit(progress.Event{
				Stage: progress.StageSourceFailed, SourceID: sourceID,
				Reason: ReasonSourceUnreadable, Note: err.Error(),
			})
			rs.logger.Warn("skipping unreadable source", zap.String("source_id", sourceID), zap.Error(err))
			continue
		}
		rs.report.Sources = append(rs.report.Sources, SourceResult{SourceID: sourceID, URLs: len(urls)})
		rs.emit(progress.Event{Stage: progress.StageSourceLoaded, SourceID: sourceID, Count: len(urls)})
		rs.logger.Info("source loaded",
			zap.String("source_id", sourceID), zap.Int("urls", len(urls)), zap.Int("offset", offset))

		if offset >= len(urls) {
			continue
		}
		if err := rs.runItems(ctx, sourceID, urls, offset); err != nil {
			return err
		}
	}
	return nil
}

// moveTo switches the checkpoint to a new source.
func (rs *runState) moveTo(ctx context.Context, sourceID string, offset int) error {
	cp := rs.report.Checkpoint
	if cp.SourceID == sourceID && cp.Offset == offset {
		return nil
	}
	rs.setCheckpoint(Checkpoint{SourceID: sourceID, Offset: offset})
	return rs.saveProgress(ctx)
}

func (rs *runState) setCheckpoint(cp Checkpoint) {
	rs.report.Checkpoint = cp
	rs.report.LastProcessedIndex = cp.Offset

	r := rs.runner
	r.mu.Lock()
	r.state.SourceID = cp.SourceID
	r.state.LastProcessedIndex = cp.Offset
	r.mu.Unlock()
	metrics.SetCheckpoint(cp.Offset)
}

func (rs *runState) saveProgress(ctx context.Context) error {
	tracker := rs.runner.deps.Tracker
	if tracker == nil || rs.trackerFailed {
		return nil
	}
	if err := tracker.SaveProgress(ctx, rs.trackedRun()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		rs.trackerFailed = true
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// runItems processes urls[offset:] and advances the checkpoint over the
// contiguous prefix of attempted items.
func (rs *runState) runItems(ctx context.Context, sourceID string, urls []string, offset int) error {
	front := newFrontier(offset)
	var abortErr error

	record := func(res ItemResult) {
		if res.interrupted {
			return
		}
		rs.recordItem(res)
		if !front.complete(res.Index) {
			return
		}
		rs.setCheckpoint(Checkpoint{SourceID: sourceID, Offset: front.next})
		rs.emit(progress.Event{Stage: progress.StageCheckpoint, SourceID: sourceID, Index: front.next})
		if abortErr == nil {
			abortErr = rs.saveProgress(ctx)
		}
	}

	workers := rs.runner.cfg.Workers
	if workers == 1 {
		for i := offset; i < len(urls); i++ {
			if ctx.Err() != nil || abortErr != nil {
				break
			}
			record(rs.runner.processItem(ctx, sourceID, i, urls[i]))
		}
		return abortErr
	}

	stop := make(chan struct{})
	var stopOnce sync.Once
	jobs := make(chan int)
	results := make(chan ItemResult, workers)

	go func() {
		defer close(jobs)
		for i := offset; i < len(urls); i++ {
			select {
			case jobs <- i:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- rs.runner.processItem(ctx, sourceID, i, urls[i])
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		record(res)
		if abortErr != nil {
			stopOnce.Do(func() { close(stop) })
		}
	}
	return abortErr
}

func (rs *runState) recordItem(res ItemResult) {
	rep := &rs.report
	rep.Items = append(rep.Items, res)

	evt := progress.Event{
		SourceID: res.SourceID,
		Index:    res.Index,
		URL:      res.URL,
		RecordID: res.RecordID,
		Dur:      res.Duration,
	}
	switch res.Outcome {
	case OutcomeStored:
		rep.ProcessedCount++
		evt.Stage = progress.StageItemStored
	case OutcomeDuplicate:
		rep.ProcessedCount++
		rep.DuplicateCount++
		evt.Stage = progress.StageItemDuplicate
	default:
		rep.FailedCount++
		evt.Stage = progress.StageItemFailed
		evt.Reason = res.Reason
		evt.Note = res.Error
		rs.logger.Warn("item failed",
			zap.String("source_id", res.SourceID),
			zap.Int("index", res.Index),
			zap.String("url", res.URL),
			zap.String("reason", res.Reason),
			zap.String("error", res.Error),
		)
	}
	rs.emit(evt)

	r := rs.runner
	r.mu.Lock()
	r.state.ProcessedCount = rep.ProcessedCount
	r.state.FailedCount = rep.FailedCount
	r.state.DuplicateCount = rep.DuplicateCount
	r.mu.Unlock()
}

// processItem runs one URL through limiter, fetcher, normalizer, and store.
func (r *Runner) processItem(ctx context.Context, sourceID string, index int, url string) (res ItemResult) {
	res = ItemResult{SourceID: sourceID, Index: index, URL: url}
	if err := r.deps.Limiter.Wait(ctx, url); err != nil {
		res.interrupted = true
		return res
	}
	start := r.deps.Clock.Now()
	defer func() {
		if d := r.deps.Clock.Now().Sub(start); d > 0 {
			res.Duration = d
		}
	}()

	fields, err := r.deps.Fetcher.Fetch(ctx, url)
	metrics.ObserveFetch(url, r.deps.Clock.Now().Sub(start))
	if err != nil {
		if ctx.Err() != nil {
			res.interrupted = true
			return res
		}
		return res.fail(ReasonFetchFailed, err)
	}

	rec := normalize.Normalize(url, fields)
	if !rec.Persistable() {
		return res.fail(ReasonMissingID, movie.ErrMissingID)
	}
	res.RecordID = rec.ID

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
	defer cancel()
	inserted, err := r.deps.Store.Upsert(storeCtx, rec)
	if err != nil {
		return res.fail(ReasonStoreFailed, err)
	}
	res.Outcome = OutcomeDuplicate
	if inserted {
		res.Outcome = OutcomeStored
	}
	return res
}

type noLimit struct{}

func (noLimit) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (res ItemResult) fail(reason string, err error) ItemResult {
	res.Outcome = OutcomeFailed
	res.Reason = reason
	res.Error = err.Error()
	return res
}
