// Package normalize converts scraped field bags into canonical movie records.
// Every function here is pure and total: malformed input degrades to defaults.
package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// Placeholder values stored when a page omits a field.
const (
	DefaultText     = "Unknown"
	DefaultQuality  = "HD"
	DefaultRating   = "N/A"
	DefaultOverview = "No description"
)

const detailSegment = "/movie/"

var (
	yearSequenceSuffix = regexp.MustCompile(`-\d{4}-\d+$`)
	nonDigits          = regexp.MustCompile(`\D`)
)

// Normalize builds the canonical record for pageURL from the scraped fields.
func Normalize(pageURL string, fields movie.RawFields) movie.Record {
	rec := movie.Record{
		ID:            textOr(fields, movie.FieldID, movie.UnknownID),
		Genre:         textOr(fields, movie.FieldGenre, DefaultText),
		Quality:       textOr(fields, movie.FieldQuality, DefaultQuality),
		Rating:        textOr(fields, movie.FieldRating, DefaultRating),
		Overview:      textOr(fields, movie.FieldOverview, DefaultOverview),
		Released:      textOr(fields, movie.FieldReleased, DefaultText),
		Casts:         textOr(fields, movie.FieldCasts, DefaultText),
		Country:       textOr(fields, movie.FieldCountry, DefaultText),
		ThumbnailURL:  absoluteURL(pageURL, fields[movie.FieldThumbnailURL]),
		BackgroundURL: absoluteURL(pageURL, fields[movie.FieldBackgroundURL]),
	}

	rec.Title = clean(fields[movie.FieldTitle])
	if rec.Title == "" {
		rec.Title = TitleFromURL(pageURL)
	}

	if raw, ok := fields.Get(movie.FieldDuration); ok {
		rec.Duration = ParseDuration(raw)
	}

	rec.WatchLink = absoluteURL(pageURL, fields[movie.FieldWatchLink])
	if rec.WatchLink == "" {
		rec.WatchLink = absoluteURL("", pageURL)
	}
	return rec
}

// ParseDuration keeps only the digits of raw and parses them as minutes.
// It returns nil when no digits remain or the number does not fit an int.
func ParseDuration(raw string) *int {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// TitleFromURL derives a display title from a detail URL slug, e.g.
// ".../movie/watch-the-great-escape-2024-7" becomes "The Great Escape".
func TitleFromURL(pageURL string) string {
	slug := slugFromURL(pageURL)
	slug = strings.TrimPrefix(slug, "watch-")
	slug = yearSequenceSuffix.ReplaceAllString(slug, "")
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)

	words := strings.Fields(slug)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	if len(words) == 0 {
		return DefaultText
	}
	return strings.Join(words, " ")
}

func slugFromURL(pageURL string) string {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		path = u.Path
	}
	if i := strings.LastIndex(path, detailSegment); i >= 0 {
		path = path[i+len(detailSegment):]
	}
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return strings.ToValidUTF8(path, "")
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

func textOr(fields movie.RawFields, key, def string) string {
	if v := clean(fields[key]); v != "" {
		return v
	}
	return def
}

func clean(s string) string {
	return strings.Join(strings.Fields(strings.ToValidUTF8(s, "")), " ")
}

// absoluteURL resolves raw against base and returns "" unless the result is an
// absolute http(s) URL.
func absoluteURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
		return ""
	}
	return ref.String()
}
