package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/movie-ingest/internal/progress"
	"github.com/JakeFAU/movie-ingest/internal/publisher/memory"
)

func runBatch(now time.Time) []progress.Event {
	return []progress.Event{
		{RunID: "run-1", TS: now, Stage: progress.StageRunStart},
		{RunID: "run-1", TS: now, Stage: progress.StageSourceLoaded, SourceID: "sitemap-list-1.xml", Count: 3},
		{
			RunID: "run-1", TS: now, Stage: progress.StageItemStored, SourceID: "sitemap-list-1.xml",
			URL: "https://example.com/movie/watch-heat-1995-42", RecordID: "42", Dur: 200 * time.Millisecond,
		},
		{
			RunID: "run-1", TS: now, Stage: progress.StageItemDuplicate, SourceID: "sitemap-list-1.xml", Index: 1,
			URL: "https://example.com/movie/watch-heat-1995-42", RecordID: "42",
		},
		{
			RunID: "run-1", TS: now, Stage: progress.StageItemFailed, SourceID: "sitemap-list-1.xml", Index: 2,
			URL: "https://example.com/movie/watch-gone-2001-7", Reason: "fetch_failed",
		},
		{RunID: "run-1", TS: now, Stage: progress.StageSourceFailed, SourceID: "sitemap-list-2.xml"},
		{RunID: "run-1", TS: now, Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), runBatch(time.Now())))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sources.WithLabelValues("loaded")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sources.WithLabelValues("failed")))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.sourceURLs))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.items.WithLabelValues("stored", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.items.WithLabelValues("duplicate", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.items.WithLabelValues("failed", "fetch_failed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.itemDuration, "ingest_item_duration_seconds"))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestPrometheusSinkRunErrorStatus(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "a", TS: now, Stage: progress.StageRunStart},
		{RunID: "a", TS: now, Stage: progress.StageRunStart},
		{RunID: "b", TS: now, Stage: progress.StageRunStart},
		{RunID: "a", TS: now, Stage: progress.StageRunError, Reason: "canceled"},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("canceled")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
}

func TestPublisherSinkAnnouncesStoredMoviesOnly(t *testing.T) {
	t.Parallel()

	pub := memory.New(0)
	sink := NewPublisherSink(pub, "movies-stored", nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), runBatch(now)))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "movies-stored", msgs[0].Topic)
	require.Equal(t, StoredMovieMessage{
		RunID:    "run-1",
		MovieID:  "42",
		SourceID: "sitemap-list-1.xml",
		URL:      "https://example.com/movie/watch-heat-1995-42",
		StoredAt: now,
	}, msgs[0].Payload)
}

func TestPublisherSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	sink := NewPublisherSink(failingPublisher{}, "t", nil)
	err := sink.Consume(context.Background(), runBatch(time.Now()))
	require.Error(t, err)

	var nilSink *PublisherSink
	require.NoError(t, nilSink.Consume(context.Background(), runBatch(time.Now())))
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runBatch(time.Now())))

	require.Equal(t, 7, logs.Len())
	require.Equal(t, 2, logs.FilterLevelExact(zap.WarnLevel).Len())
	require.Equal(t, 2, logs.FilterLevelExact(zap.DebugLevel).Len())
	failed := logs.FilterField(zap.String("reason", "fetch_failed")).All()
	require.Len(t, failed, 1)
	require.NoError(t, sink.Close(context.Background()))
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker unavailable")
}
