// Package pagemap translates logical (displayed) page positions into source
// page numbers.
package pagemap

import "sort"

// Map is an immutable, strictly increasing sequence of source page numbers,
// one per logical index.
type Map struct {
	pages    []int
	fallback bool
}

// Build emits every page in [1, total] except skip. When the exclusion
// would leave nothing to show, the unfiltered sequence is used instead and
// Fallback reports true. A skip value below 1 disables exclusion.
func Build(total, skip int) Map {
	if total <= 0 {
		return Map{}
	}
	pages := make([]int, 0, total)
	for p := 1; p <= total; p++ {
		if p == skip {
			continue
		}
		pages = append(pages, p)
	}
	if len(pages) == 0 {
		// single-page document whose only page is the excluded one
		pages = append(pages, seq(total)...)
		return Map{pages: pages, fallback: true}
	}
	return Map{pages: pages}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Len is the number of displayed pages.
func (m Map) Len() int { return len(m.pages) }

// Fallback reports whether the exclusion was abandoned to keep the sequence non-empty.
func (m Map) Fallback() bool { return m.fallback }

// Source returns the source page for a logical index.
func (m Map) Source(logical int) (int, bool) {
	if logical < 0 || logical >= len(m.pages) {
		return 0, false
	}
	return m.pages[logical], true
}

// Logical returns the logical index of a source page, if it is displayed.
func (m Map) Logical(source int) (int, bool) {
	i := sort.SearchInts(m.pages, source)
	if i < len(m.pages) && m.pages[i] == source {
		return i, true
	}
	return 0, false
}

// Clamp pins idx into [0, Len-1]. An empty map clamps everything to 0.
func (m Map) Clamp(idx int) int {
	if idx >= len(m.pages) {
		idx = len(m.pages) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Pages returns a copy of the sequence.
func (m Map) Pages() []int {
	return append([]int(nil), m.pages...)
}
