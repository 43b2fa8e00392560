package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/movie/watch-a", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserversUpdateCollectors(t *testing.T) {
	Init()
	Init()

	SetCheckpoint(42)
	if got := testutil.ToFloat64(ingestCheckpointOffset); got != 42 {
		t.Errorf("expected checkpoint gauge 42, got %f", got)
	}

	before := testutil.ToFloat64(robotsFallbackTotal)
	ObserveRobotsFallback()
	if got := testutil.ToFloat64(robotsFallbackTotal); got != before+1 {
		t.Errorf("expected robots fallback counter to grow by 1, got %f -> %f", before, got)
	}

	ObserveFetch("https://example.com/movie/watch-a", 20*time.Millisecond)
	if n := testutil.CollectAndCount(ingestFetchDuration, "ingest_fetch_duration_seconds"); n < 1 {
		t.Errorf("expected a fetch duration series, got %d", n)
	}
	ObserveRateLimitDelay(time.Second)
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
