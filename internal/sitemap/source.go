// Package sitemap turns numbered sitemap documents into ordered lists of movie
// detail URLs.
package sitemap

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// DefaultDetailSegment is the path fragment shared by every movie detail URL.
const DefaultDetailSegment = "/movie/watch-"

// Config controls where documents live and which entries are kept.
type Config struct {
	// BaseLocation is a directory, an http(s) URL prefix or a gs://bucket/prefix.
	BaseLocation string
	// DetailSegment filters entries to movie detail pages.
	DetailSegment string
	// MaxURLs caps the URLs returned per document; zero keeps all of them.
	MaxURLs int
}

// Source implements movie.SitemapSource.
type Source struct {
	cfg    Config
	opener Opener
	logger *zap.Logger
}

// NewSource builds a Source reading documents through opener.
func NewSource(cfg Config, opener Opener, logger *zap.Logger) *Source {
	if cfg.DetailSegment == "" {
		cfg.DetailSegment = DefaultDetailSegment
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, opener: opener, logger: logger}
}

// Load reads the document named sourceID and returns its movie detail URLs in
// document order.
func (s *Source) Load(ctx context.Context, sourceID string) ([]string, error) {
	location := s.Location(sourceID)
	rc, err := s.opener.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", movie.ErrSourceUnreadable, location, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Warn("sitemap close failed", zap.String("location", location), zap.Error(cerr))
		}
	}()

	urls, err := Parse(rc, s.cfg.DetailSegment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", movie.ErrSourceUnreadable, location, err)
	}
	if s.cfg.MaxURLs > 0 && len(urls) > s.cfg.MaxURLs {
		urls = urls[:s.cfg.MaxURLs]
	}
	s.logger.Debug("sitemap loaded",
		zap.String("source_id", sourceID),
		zap.String("location", location),
		zap.Int("urls", len(urls)),
	)
	return urls, nil
}

// Location joins sourceID onto the configured base location.
func (s *Source) Location(sourceID string) string {
	base := s.cfg.BaseLocation
	if base == "" {
		return sourceID
	}
	if isRemote(base) {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(sourceID, "/")
	}
	return filepath.Join(base, sourceID)
}

// Parse extracts the <loc> values of a <urlset> document whose path contains
// detailSegment. Entries that are blank or not absolute http(s) URLs are dropped.
func Parse(r io.Reader, detailSegment string) ([]string, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if xmlquery.FindOne(doc, "/urlset") == nil {
		return nil, fmt.Errorf("document root is not a urlset")
	}
	nodes, err := xmlquery.QueryAll(doc, "/urlset/url/loc")
	if err != nil {
		return nil, fmt.Errorf("query loc entries: %w", err)
	}
	urls := make([]string, 0, len(nodes))
	for _, n := range nodes {
		loc := strings.TrimSpace(n.InnerText())
		if !isDetailURL(loc, detailSegment) {
			continue
		}
		urls = append(urls, loc)
	}
	return urls, nil
}

func isDetailURL(loc, detailSegment string) bool {
	if loc == "" {
		return false
	}
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return strings.Contains(u.Path, detailSegment)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") ||
		strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "gs://")
}
