package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequestsToSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: 50 * time.Millisecond, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "https://example.com/movie/watch-a"))
	}
	// Burst 1 lets the first call through, the next two wait one interval each.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Hour, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/x"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/x"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterZeroIntervalDoesNotBlock(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Interval: time.Hour, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://example.com/")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", hostOf("https://example.com/movie/watch-a"))
	require.Equal(t, "unknown", hostOf("not a url"))
	require.Equal(t, "unknown", hostOf("http://%"))
}
