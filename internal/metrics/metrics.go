// Package metrics exposes Prometheus collectors for the ingest service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestCheckpointOffset     prometheus.Gauge
	ingestFetchDuration        *prometheus.HistogramVec
	ingestRateLimitDelay       prometheus.Histogram
	robotsFallbackTotal        prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestCheckpointOffset = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_checkpoint_offset",
				Help: "Offset of the last committed checkpoint within the current source.",
			},
		)

		ingestFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_fetch_duration_seconds",
				Help:    "Detail page fetch latency, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		ingestRateLimitDelay = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the politeness limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_robots_fallback_total",
				Help: "robots.txt fetches that timed out and were treated as allow-all.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetCheckpoint records the committed offset of the current source.
func SetCheckpoint(offset int) {
	Init()
	ingestCheckpointOffset.Set(float64(offset))
}

// ObserveFetch records the latency of one detail fetch.
func ObserveFetch(pageURL string, d time.Duration) {
	Init()
	ingestFetchDuration.WithLabelValues(SanitizeSite(pageURL)).Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a limiter wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	ingestRateLimitDelay.Observe(d.Seconds())
}

// ObserveRobotsFallback counts a robots.txt timeout treated as allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
