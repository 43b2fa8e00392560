package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/movie-ingest/internal/progress"
)

// PrometheusSink exports ingest progress via Prometheus. It owns the run,
// source, and item collectors.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsRunning  prometheus.Gauge
	runRuntime   *prometheus.HistogramVec

	sources      *prometheus.CounterVec
	sourceURLs   prometheus.Counter
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_runs_started_total",
			Help: "Total ingest runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_finished_total",
			Help: "Total ingest runs finished partitioned by status.",
		}, []string{"status"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_runs_running",
			Help: "Current number of running ingest runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"status"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_sources_total",
			Help: "Sitemap sources visited partitioned by result.",
		}, []string{"result"}),
		sourceURLs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_source_urls_total",
			Help: "Detail URLs discovered in loaded sitemap sources.",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_items_total",
			Help: "Detail URLs attempted partitioned by outcome and reason.",
		}, []string{"outcome", "reason"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_item_duration_seconds",
			Help:    "Fetch, normalize, and store latency per item partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runRuntime,
		s.sources,
		s.sourceURLs,
		s.items,
		s.itemDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		status := "completed"
		if evt.Stage == progress.StageRunError {
			status = evt.Reason
			if status == "" {
				status = "aborted"
			}
		}
		s.runsFinished.WithLabelValues(status).Inc()
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageSourceLoaded:
		s.sources.WithLabelValues("loaded").Inc()
		s.sourceURLs.Add(float64(evt.Count))
	case progress.StageSourceFailed:
		s.sources.WithLabelValues("failed").Inc()
	case progress.StageItemStored:
		s.observeItem("stored", "", evt)
	case progress.StageItemDuplicate:
		s.observeItem("duplicate", "", evt)
	case progress.StageItemFailed:
		s.observeItem("failed", evt.Reason, evt)
	}
}

func (s *PrometheusSink) observeItem(outcome, reason string, evt progress.Event) {
	s.items.WithLabelValues(outcome, reason).Inc()
	if evt.Dur > 0 {
		s.itemDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
