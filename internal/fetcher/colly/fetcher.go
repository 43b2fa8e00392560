// Package collyfetcher scrapes movie detail pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Selectors     Selectors
}

// Fetcher implements movie.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Zero-valued selectors fall back to DefaultSelectors.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.Selectors = cfg.Selectors.withDefaults()

	c := colly.NewCollector(colly.Async(false))
	// The checkpoint decides what gets revisited, not the collector.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(&robotsFallbackTransport{base: newHTTPTransport(), logger: logger})

	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// Fetch downloads pageURL and extracts its raw fields. Every failure wraps
// movie.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (movie.RawFields, error) {
	var (
		fields   movie.RawFields
		status   int
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &fields, &status, &fetchErr)

	if err := f.runCollector(ctx, collector, pageURL); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", movie.ErrFetchFailed, pageURL, err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", movie.ErrFetchFailed, pageURL, fetchErr)
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s: status %d", movie.ErrFetchFailed, pageURL, status)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: %s: response was not an html document", movie.ErrFetchFailed, pageURL)
	}
	f.logger.Debug("detail page scraped",
		zap.String("url", pageURL),
		zap.Int("status", status),
		zap.Int("fields", len(fields)),
	)
	return fields, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	fields *movie.RawFields,
	status *int,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
	})
	hooks.OnHTML("html", func(e *colly.HTMLElement) {
		*fields = Extract(e.DOM, f.cfg.Selectors)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
