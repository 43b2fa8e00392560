package collyfetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// Selectors locate each field on a detail page.
type Selectors struct {
	ID         string `mapstructure:"id"`
	IDAttr     string `mapstructure:"id_attr"`
	Title      string `mapstructure:"title"`
	Quality    string `mapstructure:"quality"`
	Rating     string `mapstructure:"rating"`
	Thumbnail  string `mapstructure:"thumbnail"`
	Background string `mapstructure:"background"`
	Overview   string `mapstructure:"overview"`
	InfoRow    string `mapstructure:"info_row"`
	WatchLink  string `mapstructure:"watch_link"`
}

// DefaultSelectors matches the markup of the scraped streaming catalogue.
var DefaultSelectors = Selectors{
	ID:         ".detail_page-watch",
	IDAttr:     "data-id",
	Title:      ".heading-name",
	Quality:    ".btn-quality",
	Rating:     ".btn-imdb",
	Thumbnail:  ".film-poster-img",
	Background: ".cover_follow",
	Overview:   ".description",
	InfoRow:    ".elements .row-line",
	WatchLink:  "a.btn-play",
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Selectors{
		ID:         pick(s.ID, d.ID),
		IDAttr:     pick(s.IDAttr, d.IDAttr),
		Title:      pick(s.Title, d.Title),
		Quality:    pick(s.Quality, d.Quality),
		Rating:     pick(s.Rating, d.Rating),
		Thumbnail:  pick(s.Thumbnail, d.Thumbnail),
		Background: pick(s.Background, d.Background),
		Overview:   pick(s.Overview, d.Overview),
		InfoRow:    pick(s.InfoRow, d.InfoRow),
		WatchLink:  pick(s.WatchLink, d.WatchLink),
	}
}

var (
	backgroundURL = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// rowFields maps info-row labels to raw field keys.
var rowFields = map[string]string{
	"released": movie.FieldReleased,
	"release":  movie.FieldReleased,
	"genre":    movie.FieldGenre,
	"genres":   movie.FieldGenre,
	"casts":    movie.FieldCasts,
	"cast":     movie.FieldCasts,
	"duration": movie.FieldDuration,
	"country":  movie.FieldCountry,
}

// Extract reads the raw fields out of a parsed detail page. Fields whose
// selector matches nothing are left out of the bag.
func Extract(doc *goquery.Selection, s Selectors) movie.RawFields {
	s = s.withDefaults()
	fields := movie.RawFields{}
	set := func(key, value string) {
		value = collapse(value)
		if value != "" {
			fields[key] = value
		}
	}

	if id, ok := doc.Find(s.ID).First().Attr(s.IDAttr); ok {
		set(movie.FieldID, id)
	}
	set(movie.FieldTitle, doc.Find(s.Title).First().Text())
	set(movie.FieldQuality, doc.Find(s.Quality).First().Text())
	set(movie.FieldRating, afterLabel(doc.Find(s.Rating).First().Text()))
	set(movie.FieldOverview, doc.Find(s.Overview).First().Text())

	poster := doc.Find(s.Thumbnail).First()
	if src, ok := poster.Attr("src"); ok && src != "" {
		set(movie.FieldThumbnailURL, src)
	} else if src, ok := poster.Attr("data-src"); ok {
		set(movie.FieldThumbnailURL, src)
	}
	if style, ok := doc.Find(s.Background).First().Attr("style"); ok {
		if m := backgroundURL.FindStringSubmatch(style); m != nil {
			set(movie.FieldBackgroundURL, m[1])
		}
	}
	if href, ok := doc.Find(s.WatchLink).First().Attr("href"); ok {
		set(movie.FieldWatchLink, href)
	}

	doc.Find(s.InfoRow).Each(func(_ int, row *goquery.Selection) {
		label, value := splitRow(row)
		if key, ok := rowFields[label]; ok {
			set(key, value)
		}
	})
	return fields
}

// splitRow returns the lower-cased label and the value of a "Label: value" row.
// Rows with anchors use the anchor texts joined by ", " as the value.
func splitRow(row *goquery.Selection) (string, string) {
	text := collapse(row.Text())
	label, rest, ok := strings.Cut(text, ":")
	if !ok {
		return "", ""
	}
	label = strings.ToLower(strings.TrimSpace(label))

	var parts []string
	row.Find("a").Each(func(_ int, a *goquery.Selection) {
		if t := collapse(a.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return label, strings.Join(parts, ", ")
	}
	return label, strings.TrimSpace(rest)
}

// afterLabel strips a leading "IMDB:"-style label.
func afterLabel(s string) string {
	if _, rest, ok := strings.Cut(s, ":"); ok {
		return rest
	}
	return s
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
