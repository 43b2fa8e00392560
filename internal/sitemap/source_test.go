package sitemap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

const mixedSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/movie/watch-the-great-escape-2024-7</loc></url>
  <url><loc>https://example.com/tv/watch-some-show-2020-3</loc></url>
  <url><loc>https://example.com/genre/action</loc></url>
  <url><loc> https://example.com/movie/watch-up-2009-19685 </loc></url>
  <url><loc></loc></url>
  <url><loc>/movie/watch-relative-2001-1</loc></url>
  <url><loc>https://example.com/movie/watch-heat-1995-11</loc></url>
</urlset>`

func TestParseFiltersToMovieDetailURLs(t *testing.T) {
	t.Parallel()

	urls, err := Parse(strings.NewReader(mixedSitemap), DefaultDetailSegment)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/movie/watch-the-great-escape-2024-7",
		"https://example.com/movie/watch-up-2009-19685",
		"https://example.com/movie/watch-heat-1995-11",
	}, urls)
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"mismatched tags": `<urlset><url><loc>https://example.com/movie/watch-a</loc></urlset>`,
		"wrong root":      `<sitemapindex><sitemap><loc>https://example.com/s.xml</loc></sitemap></sitemapindex>`,
		"not xml at all":  `{"urls": []}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(doc), DefaultDetailSegment)
			require.Error(t, err)
		})
	}
}

func TestSourceLoadFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitemap-list-1.xml"), []byte(mixedSitemap), 0o600))

	src := NewSource(Config{BaseLocation: dir, MaxURLs: 2}, FileOpener{}, nil)
	urls, err := src.Load(context.Background(), "sitemap-list-1.xml")
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Equal(t, "https://example.com/movie/watch-the-great-escape-2024-7", urls[0])
}

func TestSourceLoadMissingFileIsUnreadable(t *testing.T) {
	t.Parallel()

	src := NewSource(Config{BaseLocation: t.TempDir()}, FileOpener{}, nil)
	_, err := src.Load(context.Background(), "sitemap-list-9.xml")
	require.Error(t, err)
	require.True(t, errors.Is(err, movie.ErrSourceUnreadable))
}

func TestSourceLoadOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemaps/sitemap-list-1.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(mixedSitemap))
	}))
	defer srv.Close()

	opener := SchemeOpener{File: FileOpener{}, HTTP: NewHTTPOpener(HTTPConfig{Timeout: time.Second})}
	src := NewSource(Config{BaseLocation: srv.URL + "/sitemaps/"}, opener, nil)

	urls, err := src.Load(context.Background(), "sitemap-list-1.xml")
	require.NoError(t, err)
	require.Len(t, urls, 3)

	_, err = src.Load(context.Background(), "sitemap-list-2.xml")
	require.ErrorIs(t, err, movie.ErrSourceUnreadable)
}

// largeSitemap returns a valid urlset bigger than colly's default body limit.
func largeSitemap(minBytes int) (string, int) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	n := 0
	for b.Len() < minBytes {
		n++
		fmt.Fprintf(&b, "<url><loc>https://example.com/movie/watch-film-number-%d-2024-%d</loc></url>\n", n, n)
	}
	b.WriteString("</urlset>")
	return b.String(), n
}

func serveDocument(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSourceLoadOverHTTPAboveCollyDefaultLimit(t *testing.T) {
	t.Parallel()

	doc, n := largeSitemap(12 << 20)
	srv := serveDocument(t, doc)

	opener := SchemeOpener{HTTP: NewHTTPOpener(HTTPConfig{Timeout: 30 * time.Second})}
	src := NewSource(Config{BaseLocation: srv.URL}, opener, nil)

	urls, err := src.Load(context.Background(), "sitemap-list-1.xml")
	require.NoError(t, err)
	require.Len(t, urls, n)
	require.Equal(t, fmt.Sprintf("https://example.com/movie/watch-film-number-%d-2024-%d", n, n), urls[n-1])
}

func TestSourceLoadOverHTTPRejectsOversizedDocument(t *testing.T) {
	t.Parallel()

	srv := serveDocument(t, mixedSitemap)

	opener := SchemeOpener{HTTP: NewHTTPOpener(HTTPConfig{Timeout: time.Second, MaxBytes: 64})}
	src := NewSource(Config{BaseLocation: srv.URL}, opener, nil)

	_, err := src.Load(context.Background(), "sitemap-list-1.xml")
	require.ErrorIs(t, err, movie.ErrSourceUnreadable)
	require.ErrorContains(t, err, "exceeds 64 bytes")
	require.NotContains(t, err.Error(), "parse xml")
}

func TestSourceLocation(t *testing.T) {
	t.Parallel()

	require.Equal(t, "gs://bucket/maps/sitemap-list-3.xml",
		NewSource(Config{BaseLocation: "gs://bucket/maps"}, nil, nil).Location("sitemap-list-3.xml"))
	require.Equal(t, filepath.Join("data", "sitemaps", "a.xml"),
		NewSource(Config{BaseLocation: "data/sitemaps"}, nil, nil).Location("a.xml"))
	require.Equal(t, "a.xml", NewSource(Config{}, nil, nil).Location("a.xml"))
}

func TestSchemeOpenerWithoutGCS(t *testing.T) {
	t.Parallel()

	_, err := SchemeOpener{File: FileOpener{}}.Open(context.Background(), "gs://bucket/object.xml")
	require.ErrorContains(t, err, "no opener configured")
}

func TestSplitGCSLocation(t *testing.T) {
	t.Parallel()

	bucket, object, err := splitGCSLocation("gs://maps/prefix/sitemap-list-1.xml")
	require.NoError(t, err)
	require.Equal(t, "maps", bucket)
	require.Equal(t, "prefix/sitemap-list-1.xml", object)

	_, _, err = splitGCSLocation("gs://only-bucket")
	require.Error(t, err)
	_, _, err = splitGCSLocation("/tmp/file.xml")
	require.Error(t, err)
}

func TestSeriesSources(t *testing.T) {
	t.Parallel()

	ids, err := Series{First: 1, Count: 3}.Sources(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"sitemap-list-1.xml", "sitemap-list-2.xml", "sitemap-list-3.xml"}, ids)

	_, err = Series{Count: -1}.Sources(context.Background())
	require.Error(t, err)

	ids, err = List{"b.xml", "a.xml"}.Sources(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"b.xml", "a.xml"}, ids)
}
