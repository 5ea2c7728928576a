package api

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/pagination"
)

// List kinds
const (
	KindPosts         = "posts"
	KindProducts      = "products"
	KindAds           = "ads"
	KindNotifications = "notifications"
	KindConversations = "conversations"
)

// Endpoint is one cursor-paginated list resource and the query filters it
// accepts.
type Endpoint struct {
	Kind    string
	Path    string
	Filters []string
}

var (
	FeedEndpoint          = Endpoint{Kind: KindPosts, Path: "/api/v1/feed", Filters: []string{"type"}}
	ProductsEndpoint      = Endpoint{Kind: KindProducts, Path: "/api/v1/marketplace/products", Filters: []string{"category", "q"}}
	AdsEndpoint           = Endpoint{Kind: KindAds, Path: "/api/v1/ads", Filters: []string{"status"}}
	NotificationsEndpoint = Endpoint{Kind: KindNotifications, Path: "/api/v1/notifications", Filters: []string{"unread"}}
	ConversationsEndpoint = Endpoint{Kind: KindConversations, Path: "/api/v1/conversations"}
)

// Endpoints returns every list endpoint
func Endpoints() []Endpoint {
	return []Endpoint{FeedEndpoint, ProductsEndpoint, AdsEndpoint, NotificationsEndpoint, ConversationsEndpoint}
}

// EndpointFor returns the endpoint serving kind
func EndpointFor(kind string) (Endpoint, bool) {
	for _, ep := range Endpoints() {
		if ep.Kind == kind {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// CheckFilters rejects filters the endpoint does not accept. Empty values
// are ignored.
func (e Endpoint) CheckFilters(filters map[string]string) error {
	for name, value := range filters {
		if value == "" {
			continue
		}
		if !slices.Contains(e.Filters, name) {
			return fmt.Errorf("%s does not support filter %q", e.Kind, name)
		}
	}
	return nil
}

// ListFetcher reads pages of T from one endpoint.
type ListFetcher[T any] struct {
	client   *resty.Client
	endpoint Endpoint
	filters  map[string]string
}

// NewListFetcher returns a fetcher for endpoint. A nil client uses the
// shared one.
func NewListFetcher[T any](c *resty.Client, endpoint Endpoint, filters map[string]string) (*ListFetcher[T], error) {
	if err := endpoint.CheckFilters(filters); err != nil {
		return nil, err
	}
	kept := make(map[string]string, len(filters))
	for name, value := range filters {
		if value != "" {
			kept[name] = value
		}
	}
	return &ListFetcher[T]{client: c, endpoint: endpoint, filters: kept}, nil
}

func (f *ListFetcher[T]) Endpoint() Endpoint {
	return f.endpoint
}

// FetchPage issues GET <path>?cursor=&limit= plus the list's filters.
func (f *ListFetcher[T]) FetchPage(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.Page[T], error) {
	params := make(map[string]string, len(f.filters)+2)
	for name, value := range f.filters {
		params[name] = value
	}
	params["limit"] = strconv.Itoa(pagination.NormalizeLimit(limit))
	if cursor != nil {
		params["cursor"] = string(*cursor)
	}

	logger.Debug("Fetching list page", "kind", f.endpoint.Kind, "path", f.endpoint.Path, "cursor", params["cursor"])

	var page pagination.Page[T]
	resp, err := orShared(f.client).R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&page).
		Get(f.endpoint.Path)

	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}

	return &page, nil
}

func NewFeedFetcher(c *resty.Client, filters map[string]string) (*ListFetcher[FeedItem], error) {
	return NewListFetcher[FeedItem](c, FeedEndpoint, filters)
}

func NewProductFetcher(c *resty.Client, filters map[string]string) (*ListFetcher[Product], error) {
	return NewListFetcher[Product](c, ProductsEndpoint, filters)
}

func NewAdFetcher(c *resty.Client, filters map[string]string) (*ListFetcher[Ad], error) {
	return NewListFetcher[Ad](c, AdsEndpoint, filters)
}

func NewNotificationFetcher(c *resty.Client, filters map[string]string) (*ListFetcher[Notification], error) {
	return NewListFetcher[Notification](c, NotificationsEndpoint, filters)
}

func NewConversationFetcher(c *resty.Client, filters map[string]string) (*ListFetcher[Conversation], error) {
	return NewListFetcher[Conversation](c, ConversationsEndpoint, filters)
}
