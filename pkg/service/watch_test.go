package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/api"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/pagination"
	"github.com/zfogg/feedline/pkg/session"
	"github.com/zfogg/feedline/pkg/websocket"
)

func eventServer(t *testing.T, frames ...string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var token atomic.Value
	upgrader := gorillaws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token.Store(r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(gorillaws.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &token
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
}

func onePost(_ context.Context, _ *pagination.Cursor, _ int) (*pagination.Page[api.FeedItem], error) {
	return &pagination.Page[api.FeedItem]{
		Items:      []api.FeedItem{{Kind: api.FeedItemPost, Post: &api.Post{ID: "p1"}}},
		Pagination: &pagination.Info{},
	}, nil
}

func TestWatchMarksFreshAndRevokes(t *testing.T) {
	srv, token := eventServer(t,
		`{"type":"new_post","payload":{"post_id":"p9","author_id":"u2","count":2}}`,
		`{"type":"notification","payload":{"id":"n1","type":"like"}}`,
		`{"type":"session_revoked","payload":{"reason":"password changed"}}`,
	)

	sess, err := OpenSession(context.Background(), SessionOptions{Token: "tok"})
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	posts := session.Open(sess.Manager(), api.KindPosts, nil, pagination.FetcherFunc[api.FeedItem](onePost),
		session.ListOptions[api.FeedItem]{Key: api.ItemKey[api.FeedItem], AutoLoad: true})
	require.NoError(t, posts.Wait(ctx))
	require.Len(t, posts.Items(), 1)

	var mu sync.Mutex
	var fresh []int
	w := NewWatchService(sess, websocket.NewClient(websocket.ConfigForURL(wsURL(srv))))
	w.OnEvent = func() {
		mu.Lock()
		fresh = append(fresh, posts.FetchState().FreshItems)
		mu.Unlock()
	}

	err = w.Run(ctx)
	assert.Equal(t, clierrors.ErrorTypeSessionExpired, cliType(t, err))
	assert.Equal(t, "tok", token.Load())

	mu.Lock()
	assert.Equal(t, []int{2, 2, 0}, fresh)
	mu.Unlock()

	_, ok := sess.Token()
	assert.False(t, ok)
	st := posts.FetchState()
	assert.False(t, st.Enabled)
	assert.Equal(t, feed.Idle, st.State)
	assert.Empty(t, posts.Items(), "revocation empties the list")
}

func TestWatchRequiresSession(t *testing.T) {
	sess, err := OpenSession(context.Background(), SessionOptions{})
	require.NoError(t, err)
	defer sess.Close()

	err = NewWatchService(sess, websocket.NewClient(websocket.DefaultConfig())).Run(context.Background())
	assert.Equal(t, clierrors.ErrorTypeSignedOut, cliType(t, err))
}

func TestWatchStopsWithContext(t *testing.T) {
	srv, _ := eventServer(t)

	sess, err := OpenSession(context.Background(), SessionOptions{Token: "tok"})
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWatchService(sess, websocket.NewClient(websocket.ConfigForURL(wsURL(srv)))).Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	_, ok := sess.Token()
	assert.True(t, ok)
}
