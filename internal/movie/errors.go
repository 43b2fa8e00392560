package movie

import "errors"

// Failure taxonomy. Collaborators wrap these so callers can classify with errors.Is.
var (
	// ErrSourceUnreadable means a sitemap document could not be loaded or parsed.
	ErrSourceUnreadable = errors.New("sitemap source unreadable")
	// ErrFetchFailed means a single detail page could not be scraped.
	ErrFetchFailed = errors.New("detail fetch failed")
	// ErrStoreFailed means persistence rejected a record.
	ErrStoreFailed = errors.New("store failed")
	// ErrMissingID means the normalized record has no usable identifier.
	ErrMissingID = errors.New("record has no identifier")
	// ErrNotFound signals that the requested row does not exist.
	ErrNotFound = errors.New("not found")
)
