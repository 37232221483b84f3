// Package pagination resolves page numbers for listing views.
//
// Resolution is forgiving: a missing or non-numeric page yields the first
// page, and a page outside the valid range yields the last page.
package pagination

import (
	"strconv"
	"strings"
)

// DefaultPageSize is the number of items shown per page in listings.
const DefaultPageSize = 6

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Number   int   `json:"page"`
	Size     int   `json:"page_size"`
	Total    int64 `json:"total"`
	NumPages int   `json:"num_pages"`
}

// HasNext reports whether a page follows this one.
func (p Page[T]) HasNext() bool {
	return p.Number < p.NumPages
}

// HasPrevious reports whether a page precedes this one.
func (p Page[T]) HasPrevious() bool {
	return p.Number > 1
}

// NumPages returns how many pages total items span. An empty listing still has one page.
func NumPages(total int64, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}

// Resolve turns a raw page parameter into a valid page number and row offset.
func Resolve(raw string, total int64, size int) (number, offset int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	last := NumPages(total, size)

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil:
		n = 1
	case n < 1 || n > last:
		n = last
	}

	return n, (n - 1) * size
}

// New assembles a page from already-sliced items.
func New[T any](items []T, number, size int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Number:   number,
		Size:     size,
		Total:    total,
		NumPages: NumPages(total, size),
	}
}
