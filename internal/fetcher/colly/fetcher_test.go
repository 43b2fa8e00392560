package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-ingest/internal/metrics"
	"github.com/JakeFAU/movie-ingest/internal/movie"
)

const detailPage = `<!doctype html>
<html><body>
<div class="cover_follow" style="background-image: url('https://img.example.com/bg/escape.jpg')"></div>
<div class="detail_page-watch" data-id="19685">
  <img class="film-poster-img" src="/posters/escape.jpg">
  <h2 class="heading-name"><a href="/movie/watch-the-great-escape-2024-7">The  Great Escape</a></h2>
  <div class="stats">
    <button class="btn btn-quality"><strong>HD</strong></button>
    <button class="btn btn-imdb">IMDB: 8.2</button>
  </div>
  <div class="description">
    Allied prisoners plan a mass escape.
  </div>
  <div class="elements">
    <div class="row-line"><span class="type"><strong>Released: </strong></span> 1963-07-04</div>
    <div class="row-line"><span class="type"><strong>Genre: </strong></span>
      <a href="/genre/action">Action</a>, <a href="/genre/war">War</a></div>
    <div class="row-line"><span class="type"><strong>Casts: </strong></span>
      <a href="/cast/steve">Steve McQueen</a>, <a href="/cast/james">James Garner</a></div>
    <div class="row-line"><span class="type"><strong>Duration: </strong></span> 172 min</div>
    <div class="row-line"><span class="type"><strong>Country: </strong></span><a href="/country/us">United States</a></div>
    <div class="row-line"><span class="type"><strong>Production: </strong></span> Mirisch</div>
  </div>
  <a class="btn btn-play" href="/watch-movie/the-great-escape-19685">Watch now</a>
</div>
</body></html>`

func TestExtractReadsDetailPage(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(detailPage))
	require.NoError(t, err)

	fields := Extract(doc.Selection, Selectors{})
	require.Equal(t, movie.RawFields{
		movie.FieldID:            "19685",
		movie.FieldTitle:         "The Great Escape",
		movie.FieldQuality:       "HD",
		movie.FieldRating:        "8.2",
		movie.FieldOverview:      "Allied prisoners plan a mass escape.",
		movie.FieldThumbnailURL:  "/posters/escape.jpg",
		movie.FieldBackgroundURL: "https://img.example.com/bg/escape.jpg",
		movie.FieldWatchLink:     "/watch-movie/the-great-escape-19685",
		movie.FieldReleased:      "1963-07-04",
		movie.FieldGenre:         "Action, War",
		movie.FieldCasts:         "Steve McQueen, James Garner",
		movie.FieldDuration:      "172 min",
		movie.FieldCountry:       "United States",
	}, fields)
}

func TestExtractLeavesMissingFieldsOut(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>nothing here</p></body></html>`))
	require.NoError(t, err)
	require.Empty(t, Extract(doc.Selection, Selectors{}))
}

func TestFetchScrapesServedPage(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "movie-ingest-test" {
			http.Error(w, "unexpected user agent", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/movie/watch-the-great-escape-2024-7":
			_, _ = w.Write([]byte(detailPage))
		case "/movie/watch-json-2024-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "movie-ingest-test", Timeout: time.Second}, nil)

	fields, err := f.Fetch(context.Background(), srv.URL+"/movie/watch-the-great-escape-2024-7")
	require.NoError(t, err)
	require.Equal(t, "19685", fields[movie.FieldID])

	// Fetching the same URL twice must not be refused as a revisit.
	_, err = f.Fetch(context.Background(), srv.URL+"/movie/watch-the-great-escape-2024-7")
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), srv.URL+"/movie/watch-missing-2024-2")
	require.True(t, errors.Is(err, movie.ErrFetchFailed), "got %v", err)

	_, err = f.Fetch(context.Background(), srv.URL+"/movie/watch-json-2024-1")
	require.ErrorIs(t, err, movie.ErrFetchFailed)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(detailPage))
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{Timeout: 5 * time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL+"/movie/watch-slow-2024-1")
	require.ErrorIs(t, err, movie.ErrFetchFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRobotsFallbackTransport(t *testing.T) {
	t.Parallel()
	metrics.Init()

	transport := &robotsFallbackTransport{base: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	req = httptest.NewRequest(http.MethodGet, "https://example.com/movie/watch-a-2020-1", nil)
	_, err = transport.RoundTrip(req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
