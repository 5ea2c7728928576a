// Package pagination defines the cursor contract shared by every list
// endpoint: a request carries the cursor of the previous page and a size
// bound, a response carries items plus the metadata needed to continue.
package pagination

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// ErrCursorRepeated is returned when the server hands out a cursor it
// already issued for the same list. Following it would loop forever.
var ErrCursorRepeated = errors.New("pagination: cursor repeated")

// Cursor is an opaque server-issued resume position.
type Cursor string

// Info is the pagination block of a list response.
type Info struct {
	HasNextPage bool    `json:"hasNextPage"`
	NextCursor  *Cursor `json:"nextCursor,omitempty"`
	Total       *int    `json:"total,omitempty"`
}

// Page is one server response to one cursor fetch.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Pagination *Info `json:"pagination,omitempty"`
}

// Next returns the cursor of the following page. ok is false for the final
// page, and also for payloads that omit pagination or promise a next page
// without a cursor; a list view must never fail on a degraded payload.
func (p *Page[T]) Next() (Cursor, bool) {
	if p == nil || p.Pagination == nil || !p.Pagination.HasNextPage {
		return "", false
	}
	if p.Pagination.NextCursor == nil || *p.Pagination.NextCursor == "" {
		return "", false
	}
	return *p.Pagination.NextCursor, true
}

// HasNext reports whether another page can be requested after p.
func (p *Page[T]) HasNext() bool {
	_, ok := p.Next()
	return ok
}

// Malformed reports whether the payload breaks the contract:
// missing pagination, hasNextPage without a cursor, or a cursor on a
// final page.
func (p *Page[T]) Malformed() bool {
	if p == nil || p.Pagination == nil {
		return true
	}
	hasCursor := p.Pagination.NextCursor != nil && *p.Pagination.NextCursor != ""
	return p.Pagination.HasNextPage != hasCursor
}

// Len returns the number of items on the page.
func (p *Page[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Fetcher fetches one page. cursor is nil for the first page and afterwards
// exactly the NextCursor of the previously received page.
type Fetcher[T any] interface {
	FetchPage(ctx context.Context, cursor *Cursor, limit int) (*Page[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, cursor *Cursor, limit int) (*Page[T], error)

func (f FetcherFunc[T]) FetchPage(ctx context.Context, cursor *Cursor, limit int) (*Page[T], error) {
	return f(ctx, cursor, limit)
}

// NormalizeLimit maps a requested page size into [1, MaxLimit].
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// CursorLog remembers every cursor issued for one list instance.
type CursorLog struct {
	seen map[Cursor]struct{}
}

// Record adds c to the log, failing with ErrCursorRepeated if it was seen.
func (l *CursorLog) Record(c Cursor) error {
	if l.seen == nil {
		l.seen = make(map[Cursor]struct{})
	}
	if _, ok := l.seen[c]; ok {
		return fmt.Errorf("%w: %q", ErrCursorRepeated, string(c))
	}
	l.seen[c] = struct{}{}
	return nil
}

// Len returns how many distinct cursors were recorded.
func (l *CursorLog) Len() int {
	return len(l.seen)
}

// Reset forgets all recorded cursors.
func (l *CursorLog) Reset() {
	l.seen = nil
}

// CursorPtr returns a pointer to c, for building requests and fixtures.
func CursorPtr(c Cursor) *Cursor {
	return &c
}
