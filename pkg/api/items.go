package api

import (
	"time"
)

// Keyed is implemented by every list item. Key is stable across pages and
// is what the page cache deduplicates on.
type Keyed interface {
	Key() string
}

// ItemKey adapts Keyed to a page cache key function.
func ItemKey[T Keyed](item T) string {
	return item.Key()
}

// Key prefixes the id with the kind; posts and ads share an id space on
// some backends.
func (f FeedItem) Key() string {
	return f.Kind + ":" + f.ID()
}

func (f FeedItem) ID() string {
	switch {
	case f.Post != nil:
		return f.Post.ID
	case f.Ad != nil:
		return f.Ad.ID
	}
	return ""
}

func (f FeedItem) IsPost() bool {
	return f.Kind == FeedItemPost && f.Post != nil
}

func (f FeedItem) CreatedAt() time.Time {
	switch {
	case f.Post != nil:
		return f.Post.CreatedAt
	case f.Ad != nil:
		return f.Ad.CreatedAt
	}
	return time.Time{}
}

func (p Product) Key() string      { return p.ID }
func (a Ad) Key() string           { return a.ID }
func (n Notification) Key() string { return n.ID }
func (c Conversation) Key() string { return c.ID }
