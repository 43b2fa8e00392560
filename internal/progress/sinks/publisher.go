package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/movie"
	"github.com/JakeFAU/movie-ingest/internal/progress"
)

// StoredMovieMessage is the payload announced for every newly inserted movie.
type StoredMovieMessage struct {
	RunID    string    `json:"run_id"`
	MovieID  string    `json:"movie_id"`
	SourceID string    `json:"source_id"`
	URL      string    `json:"url"`
	StoredAt time.Time `json:"stored_at"`
}

// PublisherSink publishes a StoredMovieMessage for each ITEM_STORED event.
// Duplicates and failures are not announced.
type PublisherSink struct {
	publisher movie.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink builds a sink publishing to topic.
func NewPublisherSink(publisher movie.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes stored-movie events in order and stops at the first error.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageItemStored {
			continue
		}
		msg := StoredMovieMessage{
			RunID:    evt.RunID,
			MovieID:  evt.RecordID,
			SourceID: evt.SourceID,
			URL:      evt.URL,
			StoredAt: evt.TS.UTC(),
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			return err
		}
		s.logger.Debug("stored movie announced", zap.String("movie_id", evt.RecordID), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
