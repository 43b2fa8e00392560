package ingest

// frontier tracks the lowest index not yet attempted. Completions may arrive
// out of order; next only moves across a contiguous prefix.
type frontier struct {
	next int
	done map[int]struct{}
}

func newFrontier(start int) *frontier {
	return &frontier{next: start, done: make(map[int]struct{})}
}

// complete marks index as attempted and reports whether next advanced.
func (f *frontier) complete(index int) bool {
	if index < f.next {
		return false
	}
	f.done[index] = struct{}{}
	advanced := false
	for {
		if _, ok := f.done[f.next]; !ok {
			return advanced
		}
		delete(f.done, f.next)
		f.next++
		advanced = true
	}
}
