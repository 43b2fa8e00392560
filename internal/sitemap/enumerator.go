package sitemap

import (
	"context"
	"fmt"
)

// DefaultPattern names the numbered sitemap series.
const DefaultPattern = "sitemap-list-%d.xml"

// Series enumerates a numbered sequence of documents, e.g. sitemap-list-1.xml
// through sitemap-list-30.xml.
type Series struct {
	Pattern string
	First   int
	Count   int
}

// Sources returns the IDs in ascending number order.
func (s Series) Sources(_ context.Context) ([]string, error) {
	if s.Count < 0 {
		return nil, fmt.Errorf("series count must be >= 0, got %d", s.Count)
	}
	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	ids := make([]string, 0, s.Count)
	for i := 0; i < s.Count; i++ {
		ids = append(ids, fmt.Sprintf(pattern, s.First+i))
	}
	return ids, nil
}

// List enumerates a fixed set of IDs in the given order.
type List []string

// Sources returns a copy of the list.
func (l List) Sources(_ context.Context) ([]string, error) {
	return append([]string(nil), l...), nil
}
