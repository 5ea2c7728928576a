package api

import (
	"time"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Feed item kinds
const (
	FeedItemPost = "post"
	FeedItemAd   = "ad"
)

type Post struct {
	ID           string    `json:"id"`
	Author       User      `json:"author"`
	Body         string    `json:"body"`
	MediaURLs    []string  `json:"media_urls,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Ad struct {
	ID          string    `json:"id"`
	Advertiser  string    `json:"advertiser"`
	Headline    string    `json:"headline"`
	Body        string    `json:"body,omitempty"`
	TargetURL   string    `json:"target_url"`
	Status      string    `json:"status"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

// FeedItem is one entry of the home feed: a post or an interleaved ad.
type FeedItem struct {
	Kind string `json:"kind"`
	Post *Post  `json:"post,omitempty"`
	Ad   *Ad    `json:"ad,omitempty"`
}

type Product struct {
	ID         string    `json:"id"`
	Seller     User      `json:"seller"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Actor     User      `json:"actor"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID           string    `json:"id"`
	Participants []User    `json:"participants"`
	LastMessage  string    `json:"last_message"`
	UnreadCount  int       `json:"unread_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}
