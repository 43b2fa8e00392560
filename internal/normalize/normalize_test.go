package normalize

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{name: "minutes suffix", raw: "120 min", want: intPtr(120)},
		{name: "bare number", raw: "90", want: intPtr(90)},
		{name: "no digits", raw: "min", want: nil},
		{name: "empty", raw: "", want: nil},
		{name: "overflow", raw: "99999999999999999999999 min", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ParseDuration(tt.raw))
		})
	}
}

func TestTitleFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://example.com/movie/watch-the-great-escape-2024-7", want: "The Great Escape"},
		{url: "https://example.com/movie/watch-up-2009-19685/", want: "Up"},
		{url: "https://example.com/movie/watch-fast_and_furious", want: "Fast And Furious"},
		{url: "https://example.com/movie/watch-1917-2019-39723", want: "1917"},
		{url: "https://example.com/movie/", want: "Unknown"},
		{url: "::not a url", want: "::not A Url"},
		{url: "https://example.com/movie/watch-%FF%FE-2024-1", want: "Unknown"},
		{url: "https://example.com/movie/watch-caf%C3%A9-%FFnoir-2024-1", want: "Café Noir"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, TitleFromURL(tt.url))
		})
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	pageURL := "https://example.com/movie/watch-the-great-escape-2024-7"
	rec := Normalize(pageURL, movie.RawFields{})

	require.Equal(t, movie.Record{
		ID:        movie.UnknownID,
		Title:     "The Great Escape",
		Genre:     DefaultText,
		Quality:   DefaultQuality,
		Rating:    DefaultRating,
		Overview:  DefaultOverview,
		Released:  DefaultText,
		Casts:     DefaultText,
		Country:   DefaultText,
		WatchLink: pageURL,
	}, rec)
	require.False(t, rec.Persistable())
}

func TestNormalizePassesFieldsThrough(t *testing.T) {
	t.Parallel()

	pageURL := "https://example.com/movie/watch-the-great-escape-2024-7"
	rec := Normalize(pageURL, movie.RawFields{
		movie.FieldID:            "19685",
		movie.FieldTitle:         "  The   Great Escape ",
		movie.FieldGenre:         "Action, Drama",
		movie.FieldQuality:       "4K",
		movie.FieldRating:        "7.9",
		movie.FieldOverview:      "POWs plan a breakout.",
		movie.FieldReleased:      "1963-07-04",
		movie.FieldCasts:         "Steve McQueen, James Garner",
		movie.FieldDuration:      "172 min",
		movie.FieldCountry:       "United States",
		movie.FieldThumbnailURL:  "/images/poster.jpg",
		movie.FieldBackgroundURL: "https://cdn.example.com/bg.jpg",
		movie.FieldWatchLink:     "javascript:alert(1)",
	})

	require.True(t, rec.Persistable())
	require.Equal(t, "19685", rec.ID)
	require.Equal(t, "The Great Escape", rec.Title)
	require.Equal(t, "Action, Drama", rec.Genre)
	require.Equal(t, "4K", rec.Quality)
	require.Equal(t, "7.9", rec.Rating)
	require.Equal(t, intPtr(172), rec.Duration)
	require.Equal(t, "https://example.com/images/poster.jpg", rec.ThumbnailURL)
	require.Equal(t, "https://cdn.example.com/bg.jpg", rec.BackgroundURL)
	require.Equal(t, pageURL, rec.WatchLink, "non-http watch link falls back to the page URL")
}

func TestNormalizeDropsInvalidUTF8(t *testing.T) {
	t.Parallel()

	rec := Normalize("https://example.com/movie/watch-x-2024-1", movie.RawFields{
		movie.FieldID:       "9",
		movie.FieldTitle:    "Bad\xff Title",
		movie.FieldOverview: "\xfe",
	})
	require.Equal(t, "Bad Title", rec.Title)
	require.Equal(t, "No description", rec.Overview)
	require.True(t, utf8.ValidString(rec.Title))
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	fields := movie.RawFields{movie.FieldID: "1", movie.FieldDuration: "min"}
	first := Normalize("https://example.com/movie/watch-a-2020-1", fields)
	second := Normalize("https://example.com/movie/watch-a-2020-1", fields)
	require.Equal(t, first, second)
	require.Nil(t, first.Duration)
}

func intPtr(v int) *int { return &v }
