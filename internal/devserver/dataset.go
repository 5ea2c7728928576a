package devserver

import (
	"fmt"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/zfogg/feedline/pkg/api"
)

// DevPassword is accepted for every seeded account.
const DevPassword = "password"

// Sizes sets how many records of each kind are seeded.
type Sizes struct {
	Users         int
	Posts         int
	AdEvery       int
	Products      int
	Ads           int
	Notifications int
	Conversations int
}

func DefaultSizes() Sizes {
	return Sizes{
		Users:         12,
		Posts:         120,
		AdEvery:       7,
		Products:      80,
		Ads:           25,
		Notifications: 60,
		Conversations: 30,
	}
}

// Dataset is the in-memory content served by the dev server. Every list is
// ordered newest first.
type Dataset struct {
	Users         []api.User
	Feed          []api.FeedItem
	Products      []api.Product
	Ads           []api.Ad
	Notifications []api.Notification
	Conversations []api.Conversation
}

var (
	categories   = []string{"synths", "drum machines", "samples", "plugins", "cables", "monitors"}
	adStatuses   = []string{"active", "paused", "ended"}
	notifyTypes  = []string{"like", "comment", "follow", "mention"}
	currencies   = []string{"USD", "EUR"}
	seedInterval = 90 * 24 * time.Hour
)

// Seed builds a dataset from seed. The same seed yields the same content.
func Seed(seed uint64, sizes Sizes, now time.Time) *Dataset {
	f := gofakeit.New(seed)
	since := now.Add(-seedInterval)
	when := func() time.Time { return f.DateRange(since, now).UTC().Truncate(time.Second) }

	d := &Dataset{}

	for i := 0; i < max(sizes.Users, 1); i++ {
		d.Users = append(d.Users, api.User{
			ID:          f.UUID(),
			Email:       f.Email(),
			Username:    f.Username(),
			DisplayName: f.Name(),
			CreatedAt:   when(),
		})
	}
	user := func() api.User { return d.Users[f.Number(0, len(d.Users)-1)] }

	for i := 0; i < sizes.Ads; i++ {
		d.Ads = append(d.Ads, api.Ad{
			ID:          f.UUID(),
			Advertiser:  f.Company(),
			Headline:    f.HipsterSentence(),
			TargetURL:   f.URL(),
			Status:      adStatuses[f.Number(0, len(adStatuses)-1)],
			Impressions: f.Number(0, 50000),
			Clicks:      f.Number(0, 900),
			CreatedAt:   when(),
		})
	}
	newestFirst(d.Ads, func(a api.Ad) time.Time { return a.CreatedAt })

	posts := make([]api.Post, 0, sizes.Posts)
	for i := 0; i < sizes.Posts; i++ {
		posts = append(posts, api.Post{
			ID:           f.UUID(),
			Author:       user(),
			Body:         f.HipsterSentence(),
			LikeCount:    f.Number(0, 400),
			CommentCount: f.Number(0, 40),
			CreatedAt:    when(),
		})
	}
	newestFirst(posts, func(p api.Post) time.Time { return p.CreatedAt })

	ad := 0
	for i := range posts {
		d.Feed = append(d.Feed, api.FeedItem{Kind: api.FeedItemPost, Post: &posts[i]})
		if sizes.AdEvery > 0 && (i+1)%sizes.AdEvery == 0 && ad < len(d.Ads) {
			d.Feed = append(d.Feed, api.FeedItem{Kind: api.FeedItemAd, Ad: &d.Ads[ad]})
			ad++
		}
	}

	for i := 0; i < sizes.Products; i++ {
		d.Products = append(d.Products, api.Product{
			ID:         f.UUID(),
			Seller:     user(),
			Title:      f.ProductName(),
			Category:   categories[f.Number(0, len(categories)-1)],
			PriceCents: int64(f.Number(500, 250000)),
			Currency:   currencies[f.Number(0, len(currencies)-1)],
			Stock:      f.Number(0, 30),
			CreatedAt:  when(),
		})
	}
	newestFirst(d.Products, func(p api.Product) time.Time { return p.CreatedAt })

	for i := 0; i < sizes.Notifications; i++ {
		actor := user()
		kind := notifyTypes[f.Number(0, len(notifyTypes)-1)]
		d.Notifications = append(d.Notifications, api.Notification{
			ID:        f.UUID(),
			Type:      kind,
			Actor:     actor,
			Message:   fmt.Sprintf("@%s %s", actor.Username, notificationVerb(kind)),
			Read:      f.Bool(),
			CreatedAt: when(),
		})
	}
	newestFirst(d.Notifications, func(n api.Notification) time.Time { return n.CreatedAt })

	for i := 0; i < sizes.Conversations; i++ {
		d.Conversations = append(d.Conversations, api.Conversation{
			ID:           f.UUID(),
			Participants: []api.User{user(), user()},
			LastMessage:  f.HipsterSentence(),
			UnreadCount:  f.Number(0, 5),
			UpdatedAt:    when(),
		})
	}
	newestFirst(d.Conversations, func(c api.Conversation) time.Time { return c.UpdatedAt })

	return d
}

func notificationVerb(kind string) string {
	switch kind {
	case "like":
		return "liked your post"
	case "comment":
		return "commented on your post"
	case "follow":
		return "followed you"
	default:
		return "mentioned you"
	}
}

func newestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).After(at(items[j])) })
}

// UserByEmail finds a seeded account.
func (d *Dataset) UserByEmail(email string) (api.User, bool) {
	for _, u := range d.Users {
		if u.Email == email {
			return u, true
		}
	}
	return api.User{}, false
}

// UserByID finds a seeded account.
func (d *Dataset) UserByID(id string) (api.User, bool) {
	for _, u := range d.Users {
		if u.ID == id {
			return u, true
		}
	}
	return api.User{}, false
}

// Unread counts unread notifications.
func (d *Dataset) Unread() int {
	n := 0
	for _, it := range d.Notifications {
		if !it.Read {
			n++
		}
	}
	return n
}
