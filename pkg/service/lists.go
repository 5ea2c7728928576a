package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/auth"
	"github.com/zfogg/feedline/pkg/config"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/formatter"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/pagecache"
	"github.com/zfogg/feedline/pkg/pagination"
	"github.com/zfogg/feedline/pkg/session"
	"github.com/zfogg/feedline/pkg/tui"
)

// ListRequest describes one list to show.
type ListRequest struct {
	Kind    string
	Filters map[string]string
	Limit   int

	// Pages bounds the non-interactive walk. Zero or less walks until the
	// list is exhausted.
	Pages int

	// HideAds drops interleaved ads from the home feed view.
	HideAds bool

	Interactive bool
}

// ListService shows paginated lists either as a one-shot page walk or as
// an interactive scroll view.
type ListService struct {
	sess      *Session
	http      *resty.Client
	watcher   *WatchService
	recovery  *auth.SessionRecovery
	rowThresh float64
}

// NewListService creates a list service reading through c. A nil c uses
// the shared client.
func NewListService(sess *Session, c *resty.Client) *ListService {
	rows := config.GetFloat64("tui.threshold")
	if rows <= 0 {
		rows = tui.DefaultThreshold
	}
	return &ListService{sess: sess, http: c, rowThresh: rows}
}

// WithRecovery refreshes an expired session when an interactive list that
// failed is reset.
func (s *ListService) WithRecovery(r *auth.SessionRecovery) *ListService {
	s.recovery = r
	return s
}

// recoverSession refreshes the stored token after a session error and
// reloads it into the open session. Other errors need no recovery.
func (s *ListService) recoverSession(ctx context.Context, err error) error {
	if s.recovery == nil || !auth.IsSessionError(err) {
		return nil
	}
	if rerr := s.recovery.HandleSessionError(ctx, err); rerr != nil {
		return rerr
	}
	s.sess.Reload()
	return nil
}

// WithWatcher streams realtime events into interactive lists.
func (s *ListService) WithWatcher(w *WatchService) *ListService {
	s.watcher = w
	return s
}

// Show fetches and renders the list described by req.
func (s *ListService) Show(ctx context.Context, req ListRequest) error {
	limit := req.Limit
	if limit <= 0 {
		limit = config.FeedLimit(req.Kind)
	}
	logger.Debug("Showing list", "kind", req.Kind, "filters", req.Filters, "limit", limit, "pages", req.Pages)

	switch req.Kind {
	case api.KindPosts:
		f, err := api.NewFeedFetcher(s.http, req.Filters)
		if err != nil {
			return clierrors.ValidationError("filter", err.Error())
		}
		var keep func(api.FeedItem) bool
		if req.HideAds {
			keep = api.FeedItem.IsPost
		}
		return show(ctx, s, req, limit, f, api.ItemKey[api.FeedItem], formatter.Feed(), keep)

	case api.KindProducts:
		f, err := api.NewProductFetcher(s.http, req.Filters)
		if err != nil {
			return clierrors.ValidationError("filter", err.Error())
		}
		return show(ctx, s, req, limit, f, api.ItemKey[api.Product], formatter.Products(), nil)

	case api.KindAds:
		f, err := api.NewAdFetcher(s.http, req.Filters)
		if err != nil {
			return clierrors.ValidationError("filter", err.Error())
		}
		return show(ctx, s, req, limit, f, api.ItemKey[api.Ad], formatter.Ads(), nil)

	case api.KindNotifications:
		f, err := api.NewNotificationFetcher(s.http, req.Filters)
		if err != nil {
			return clierrors.ValidationError("filter", err.Error())
		}
		return show(ctx, s, req, limit, f, api.ItemKey[api.Notification], formatter.Notifications(), nil)

	case api.KindConversations:
		f, err := api.NewConversationFetcher(s.http, req.Filters)
		if err != nil {
			return clierrors.ValidationError("filter", err.Error())
		}
		return show(ctx, s, req, limit, f, api.ItemKey[api.Conversation], formatter.Conversations(), nil)
	}

	return clierrors.ValidationError("kind", fmt.Sprintf("unknown list %q", req.Kind))
}

func show[T any](ctx context.Context, s *ListService, req ListRequest, limit int, fetcher pagination.Fetcher[T], key pagecache.KeyFunc[T], r formatter.Renderer[T], keep func(T) bool) error {
	if req.Interactive {
		return browse(ctx, s, req, limit, fetcher, key, r, keep)
	}

	snap, err := Collect(ctx, s.sess.Manager(), req.Kind, req.Filters, fetcher, key, limit, req.Pages)
	if err != nil {
		return err
	}

	items := snap.Items
	if keep != nil {
		items = pagecache.Filter(items, keep)
	}

	text := output.GetOutputFormat() != output.FormatJSON
	if len(items) == 0 && text {
		output.PrintInfo("Nothing here yet.")
		return nil
	}
	if err := r.Print(items); err != nil {
		return err
	}
	if snap.State == feed.Idle && text {
		output.PrintInfo("\n%s items in %d pages. More available, raise --pages to keep going.", output.Count(len(items)), snap.Pages)
	}
	return nil
}

// Collect walks a list the way a viewport would: the first page loads on
// open and each following page is requested by reporting the sentinel at
// the viewport edge, at most pages times in total.
func Collect[T any](ctx context.Context, m *session.Manager, kind string, filters map[string]string, fetcher pagination.Fetcher[T], key pagecache.KeyFunc[T], limit, pages int) (feed.Snapshot[T], error) {
	if !m.Active() {
		return feed.Snapshot[T]{}, clierrors.SignedOutError()
	}

	ctrl := session.Open(m, kind, filters, fetcher, session.ListOptions[T]{Limit: limit, Key: key})
	defer ctrl.Close()

	ctrl.Load(ctx)
	if err := ctrl.Wait(ctx); err != nil {
		return ctrl.Snapshot(), err
	}
	for n := 1; pages <= 0 || n < pages; n++ {
		if !ctrl.TriggerNearEnd(ctx) {
			break
		}
		if err := ctrl.Wait(ctx); err != nil {
			return ctrl.Snapshot(), err
		}
	}

	snap := ctrl.Snapshot()
	logger.Debug("Collected list", "kind", kind, "fetches", ctrl.Calls(), "items", len(snap.Items), "state", snap.State)
	switch {
	case !snap.Enabled:
		return snap, clierrors.SignedOutError()
	case snap.State == feed.Error:
		return snap, clierrors.CategorizeError(snap.LastError)
	}
	return snap, nil
}

func browse[T any](ctx context.Context, s *ListService, req ListRequest, limit int, fetcher pagination.Fetcher[T], key pagecache.KeyFunc[T], r formatter.Renderer[T], keep func(T) bool) error {
	var n tui.Notifier

	ctrl := session.Open(s.sess.Manager(), req.Kind, req.Filters, fetcher, session.ListOptions[T]{
		Limit:     limit,
		Key:       key,
		Threshold: s.rowThresh,
		OnChange:  n.Notify,
	})
	defer ctrl.Close()

	if s.watcher != nil {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		s.watcher.OnEvent = n.Notify
		go func() {
			err := s.watcher.Run(wctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Realtime updates stopped", "error", err)
			}
		}()
	}

	return tui.Run(ctx, ctrl, &n, tui.Options[T]{
		Title:   title(req),
		Render:  r.Line,
		Keep:    keep,
		Recover: s.recoverSession,
	})
}

func title(req ListRequest) string {
	t := req.Kind
	if ep, ok := api.EndpointFor(req.Kind); ok {
		for _, name := range ep.Filters {
			if v := req.Filters[name]; v != "" {
				t += fmt.Sprintf(" %s=%s", name, v)
			}
		}
	}
	return t
}
