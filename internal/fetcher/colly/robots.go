package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsFallbackTransport treats an unreachable robots.txt as allow-all so a
// flaky origin does not turn every detail fetch into a failure.
type robotsFallbackTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

func (t *robotsFallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if !isRobotsTxtRequest(req) || !isTransientError(err) {
		return nil, fmt.Errorf("roundtrip: %w", err)
	}
	metrics.ObserveRobotsFallback()
	if t.logger != nil {
		t.logger.Warn("robots.txt unreachable, assuming allow-all",
			zap.String("host", req.URL.Host), zap.Error(err))
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}, nil
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
