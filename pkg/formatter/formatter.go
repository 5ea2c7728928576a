package formatter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/output"
)

var (
	Bold    = color.New(color.Bold)
	Faint   = color.New(color.Faint)
	Info    = color.New(color.FgCyan)
	Warning = color.New(color.FgYellow)
)

// Renderer turns list items into table rows and single display lines.
type Renderer[T any] struct {
	Headers []string
	Row     func(T) []string
	Line    func(T) string
}

// Table renders items as table rows
func (r Renderer[T]) Table(items []T) [][]string {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = r.Row(it)
	}
	return rows
}

// Lines renders items one line each
func (r Renderer[T]) Lines(items []T) []string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = r.Line(it)
	}
	return lines
}

// Print writes items in the configured output format
func (r Renderer[T]) Print(items []T) error {
	switch output.GetOutputFormat() {
	case output.FormatJSON:
		return output.Print("", items)
	case output.FormatTable:
		output.PrintTable(r.Headers, r.Table(items))
	default:
		output.PrintLines(r.Lines(items))
	}
	return nil
}

// Truncate shortens s to at most n runes, flattening newlines
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

const bodyWidth = 60

func Feed() Renderer[api.FeedItem] {
	return Renderer[api.FeedItem]{
		Headers: []string{"Kind", "ID", "From", "Text", "Likes", "When"},
		Row: func(it api.FeedItem) []string {
			switch {
			case it.Post != nil:
				return []string{it.Kind, it.Post.ID, "@" + it.Post.Author.Username, Truncate(it.Post.Body, bodyWidth), output.Count(it.Post.LikeCount), output.Ago(it.Post.CreatedAt)}
			case it.Ad != nil:
				return []string{it.Kind, it.Ad.ID, it.Ad.Advertiser, Truncate(it.Ad.Headline, bodyWidth), "-", output.Ago(it.Ad.CreatedAt)}
			}
			return []string{it.Kind, "", "", "", "", ""}
		},
		Line: func(it api.FeedItem) string {
			switch {
			case it.Post != nil:
				return fmt.Sprintf("%s %s  %s %s",
					Bold.Sprint("@"+it.Post.Author.Username),
					Faint.Sprint(output.Ago(it.Post.CreatedAt)),
					Truncate(it.Post.Body, bodyWidth),
					Faint.Sprintf("♥ %s", output.Count(it.Post.LikeCount)))
			case it.Ad != nil:
				return fmt.Sprintf("%s %s  %s",
					Warning.Sprint("Sponsored"),
					Bold.Sprint(it.Ad.Advertiser),
					Truncate(it.Ad.Headline, bodyWidth))
			}
			return Faint.Sprintf("(empty %s)", it.Kind)
		},
	}
}

func Products() Renderer[api.Product] {
	return Renderer[api.Product]{
		Headers: []string{"ID", "Title", "Category", "Price", "Stock", "Seller"},
		Row: func(p api.Product) []string {
			return []string{p.ID, Truncate(p.Title, bodyWidth), p.Category, output.Price(p.PriceCents, p.Currency), output.Count(p.Stock), "@" + p.Seller.Username}
		},
		Line: func(p api.Product) string {
			return fmt.Sprintf("%s  %s  %s",
				Bold.Sprint(Truncate(p.Title, bodyWidth)),
				Info.Sprint(output.Price(p.PriceCents, p.Currency)),
				Faint.Sprint(p.Category))
		},
	}
}

func Ads() Renderer[api.Ad] {
	return Renderer[api.Ad]{
		Headers: []string{"ID", "Headline", "Status", "Impressions", "Clicks", "Created"},
		Row: func(a api.Ad) []string {
			return []string{a.ID, Truncate(a.Headline, bodyWidth), a.Status, output.Count(a.Impressions), output.Count(a.Clicks), output.Ago(a.CreatedAt)}
		},
		Line: func(a api.Ad) string {
			return fmt.Sprintf("%s  [%s]  %s impressions, %s clicks",
				Bold.Sprint(Truncate(a.Headline, bodyWidth)),
				a.Status,
				output.Count(a.Impressions),
				output.Count(a.Clicks))
		},
	}
}

func Notifications() Renderer[api.Notification] {
	return Renderer[api.Notification]{
		Headers: []string{"ID", "Type", "From", "Message", "Read", "When"},
		Row: func(n api.Notification) []string {
			return []string{n.ID, n.Type, "@" + n.Actor.Username, Truncate(n.Message, bodyWidth), fmt.Sprint(n.Read), output.Ago(n.CreatedAt)}
		},
		Line: func(n api.Notification) string {
			marker := " "
			if !n.Read {
				marker = Info.Sprint("●")
			}
			return fmt.Sprintf("%s %s %s  %s", marker, Bold.Sprint("@"+n.Actor.Username), Truncate(n.Message, bodyWidth), Faint.Sprint(output.Ago(n.CreatedAt)))
		},
	}
}

func Conversations() Renderer[api.Conversation] {
	return Renderer[api.Conversation]{
		Headers: []string{"ID", "With", "Last message", "Unread", "Updated"},
		Row: func(c api.Conversation) []string {
			return []string{c.ID, participants(c.Participants), Truncate(c.LastMessage, bodyWidth), output.Count(c.UnreadCount), output.Ago(c.UpdatedAt)}
		},
		Line: func(c api.Conversation) string {
			unread := ""
			if c.UnreadCount > 0 {
				unread = Info.Sprintf(" (%d)", c.UnreadCount)
			}
			return fmt.Sprintf("%s%s  %s  %s", Bold.Sprint(participants(c.Participants)), unread, Truncate(c.LastMessage, bodyWidth), Faint.Sprint(output.Ago(c.UpdatedAt)))
		},
	}
}

func participants(users []api.User) string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = "@" + u.Username
	}
	return strings.Join(names, ", ")
}
