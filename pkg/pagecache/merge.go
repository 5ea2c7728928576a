// Package pagecache accumulates fetched pages into one ordered,
// append-only list and keeps those lists per (kind, identity, filters).
package pagecache

import (
	"slices"

	"github.com/zfogg/feedline/pkg/pagination"
)

// Flatten concatenates the items of pages in fetch order. The input is not
// modified and the result shares no backing array with it.
func Flatten[T any](pages []*pagination.Page[T]) []T {
	n := 0
	for _, p := range pages {
		n += p.Len()
	}
	out := make([]T, 0, n)
	for _, p := range pages {
		if p == nil {
			continue
		}
		out = append(out, p.Items...)
	}
	return out
}

// AppendPage returns a new page sequence with page at the end.
func AppendPage[T any](pages []*pagination.Page[T], page *pagination.Page[T]) []*pagination.Page[T] {
	out := make([]*pagination.Page[T], len(pages), len(pages)+1)
	copy(out, pages)
	return append(out, page)
}

// Filter returns the items for which keep is true. The underlying cache is
// untouched, so views such as "posts without interleaved ads" are cheap.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// KeyFunc returns the identity key of an item.
type KeyFunc[T any] func(T) string

// Collection is the page log of one logical list. Pages are only ever
// appended; the flattened view drops items whose identity key was already
// seen, keeping the first occurrence, so earlier views stay a prefix of
// later ones.
type Collection[T any] struct {
	pages []*pagination.Page[T]
	key   KeyFunc[T]
	items []T
	seen  map[string]struct{}
	dupes int
}

// NewCollection returns an empty collection. A nil key disables
// deduplication.
func NewCollection[T any](key KeyFunc[T]) *Collection[T] {
	return &Collection[T]{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

// Append adds page to the end of the log and returns how many of its items
// became visible.
func (c *Collection[T]) Append(page *pagination.Page[T]) int {
	if page == nil {
		return 0
	}
	c.pages = AppendPage(c.pages, page)

	added := 0
	for _, it := range page.Items {
		if c.key != nil {
			k := c.key(it)
			if _, dup := c.seen[k]; dup {
				c.dupes++
				continue
			}
			c.seen[k] = struct{}{}
		}
		c.items = append(c.items, it)
		added++
	}
	return added
}

// Items returns the flattened, deduplicated view.
func (c *Collection[T]) Items() []T {
	return slices.Clone(c.items)
}

// Pages returns the pages in fetch order.
func (c *Collection[T]) Pages() []*pagination.Page[T] {
	return slices.Clone(c.pages)
}

// Last returns the most recently appended page, or nil.
func (c *Collection[T]) Last() *pagination.Page[T] {
	if len(c.pages) == 0 {
		return nil
	}
	return c.pages[len(c.pages)-1]
}

func (c *Collection[T]) Len() int        { return len(c.items) }
func (c *Collection[T]) PageCount() int  { return len(c.pages) }
func (c *Collection[T]) Duplicates() int { return c.dupes }
