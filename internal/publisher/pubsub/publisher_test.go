package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "movie-ingest-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "movies-stored")
	require.NoError(t, err)

	pub := New(client, "movies-stored")
	defer pub.Stop()

	id, err := pub.Publish(ctx, "", map[string]string{"movie_id": "42"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "42", got["movie_id"])
}

func TestPublisherInjectsTraceContext(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "movies-stored")
	require.NoError(t, err)

	pub := New(client, "movies-stored")
	pub.propagator = NewPropagator()
	defer pub.Stop()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	spanCtx := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	_, err = pub.Publish(spanCtx, "", map[string]string{"movie_id": "7"})
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t,
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		msgs[0].Attributes["traceparent"],
	)
}

func TestPublisherWithoutSpanAddsNoTraceAttributes(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "movies-stored")
	require.NoError(t, err)

	pub := New(client, "movies-stored")
	pub.propagator = NewPropagator()
	defer pub.Stop()

	_, err = pub.Publish(ctx, "", "x")
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.NotContains(t, msgs[0].Attributes, "traceparent")
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	var unconfigured *Publisher
	_, err := unconfigured.Publish(context.Background(), "t", "x")
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client, "")
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestPubsubCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
