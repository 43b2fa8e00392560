package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gocolly/colly/v2"
)

// Opener returns a reader for a sitemap document location.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// FileOpener reads documents from the local filesystem.
type FileOpener struct{}

// Open opens the file at location.
func (FileOpener) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// DefaultMaxBytes is the sitemap protocol's uncompressed size limit.
const DefaultMaxBytes = 50 << 20

// HTTPConfig controls the remote document collector.
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBytes rejects larger documents; zero means DefaultMaxBytes.
	MaxBytes int
}

// HTTPOpener downloads documents with a Colly collector.
type HTTPOpener struct {
	base     *colly.Collector
	maxBytes int
}

// NewHTTPOpener builds an HTTPOpener.
func NewHTTPOpener(cfg HTTPConfig) *HTTPOpener {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	// Colly truncates silently at MaxBodySize; one extra byte exposes an oversized body.
	c.MaxBodySize = cfg.MaxBytes + 1
	return &HTTPOpener{base: c, maxBytes: cfg.MaxBytes}
}

// Open fetches location and buffers the body.
func (o *HTTPOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	collector := o.base.Clone()
	var body []byte
	var status int
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(location)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sitemap download canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("sitemap download: %w", err)
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("sitemap download: unexpected status %d", status)
	}
	if len(body) > o.maxBytes {
		return nil, fmt.Errorf("sitemap download: document exceeds %d bytes", o.maxBytes)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// GCSOpener reads documents addressed as gs://bucket/object.
type GCSOpener struct {
	client *storage.Client
}

// NewGCSOpener wraps a Cloud Storage client.
func NewGCSOpener(client *storage.Client) *GCSOpener {
	return &GCSOpener{client: client}
}

// Open returns an object reader for location.
func (o *GCSOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if o.client == nil {
		return nil, errors.New("storage client is not configured")
	}
	bucket, object, err := splitGCSLocation(location)
	if err != nil {
		return nil, err
	}
	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	return r, nil
}

func splitGCSLocation(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// location: %q", location)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs location needs bucket and object: %q", location)
	}
	return bucket, object, nil
}

// SchemeOpener dispatches to an Opener by location scheme. Locations without a
// recognised scheme go to the file opener.
type SchemeOpener struct {
	File Opener
	HTTP Opener
	GCS  Opener
}

// Open routes location to the matching opener.
func (o SchemeOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	var target Opener
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		target = o.HTTP
	case strings.HasPrefix(location, "gs://"):
		target = o.GCS
	default:
		target = o.File
	}
	if target == nil {
		return nil, fmt.Errorf("no opener configured for %q", location)
	}
	return target.Open(ctx, location)
}
