package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/auth"
	"github.com/zfogg/feedline/pkg/client"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/output"
)

// fakeAPI serves the home feed as p1..p9 plus ad a1 with cursor c1, then
// p10..p12. Products always fail.
type fakeAPI struct {
	mu      sync.Mutex
	cursors []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/v1/feed":
		cursor := r.URL.Query().Get("cursor")
		f.mu.Lock()
		f.cursors = append(f.cursors, cursor)
		f.mu.Unlock()

		var items []string
		next := `{"hasNextPage":true,"nextCursor":"c1"}`
		from, to := 1, 9
		if cursor == "c1" {
			from, to, next = 10, 12, `{"hasNextPage":false}`
		} else {
			items = append(items, `{"kind":"ad","ad":{"id":"a1","advertiser":"Acme","headline":"Buy anvils"}}`)
		}
		for i := from; i <= to; i++ {
			items = append(items, fmt.Sprintf(`{"kind":"post","post":{"id":"p%d","body":"post number %d","author":{"username":"alice"}}}`, i, i))
		}
		fmt.Fprintf(w, `{"items":[%s],"pagination":%s}`, strings.Join(items, ","), next)

	case "/api/v1/marketplace/products":
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":"internal","message":"database unavailable"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setup(t *testing.T, token string) (*fakeAPI, *ListService, *Session) {
	t.Helper()
	fake := &fakeAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sess, err := OpenSession(context.Background(), SessionOptions{Token: token})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	return fake, NewListService(sess, client.New(srv.URL, 5*time.Second)), sess
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := output.SetWriter(&buf)
	t.Cleanup(func() { output.SetWriter(prev) })
	return &buf
}

func cliType(t *testing.T, err error) clierrors.ErrorType {
	t.Helper()
	var cliErr *clierrors.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %T: %v", err, err)
	return cliErr.Type
}

func TestCollectWalksUntilExhausted(t *testing.T) {
	fake, s, sess := setup(t, "tok")
	f, err := api.NewFeedFetcher(s.http, nil)
	require.NoError(t, err)

	snap, err := Collect(context.Background(), sess.Manager(), api.KindPosts, nil, f, api.ItemKey[api.FeedItem], 10, 0)
	require.NoError(t, err)

	assert.Equal(t, feed.Exhausted, snap.State)
	assert.Len(t, snap.Items, 13)
	assert.Equal(t, []string{"", "c1"}, fake.cursors)
	assert.Equal(t, 0, sess.Manager().Lists(), "collected lists are closed")
}

func TestCollectStopsAtPageBound(t *testing.T) {
	fake, s, sess := setup(t, "tok")
	f, err := api.NewFeedFetcher(s.http, nil)
	require.NoError(t, err)

	snap, err := Collect(context.Background(), sess.Manager(), api.KindPosts, nil, f, api.ItemKey[api.FeedItem], 10, 1)
	require.NoError(t, err)

	assert.Equal(t, feed.Idle, snap.State)
	assert.Len(t, snap.Items, 10)
	assert.Equal(t, []string{""}, fake.cursors)
}

func TestCollectSignedOut(t *testing.T) {
	fake, s, sess := setup(t, "")
	f, err := api.NewFeedFetcher(s.http, nil)
	require.NoError(t, err)

	_, err = Collect(context.Background(), sess.Manager(), api.KindPosts, nil, f, api.ItemKey[api.FeedItem], 10, 0)
	assert.Equal(t, clierrors.ErrorTypeSignedOut, cliType(t, err))
	assert.Empty(t, fake.cursors)
}

func TestShowHidesAds(t *testing.T) {
	_, s, _ := setup(t, "tok")
	buf := captureOutput(t)

	require.NoError(t, s.Show(context.Background(), ListRequest{Kind: api.KindPosts, HideAds: true}))
	out := buf.String()
	assert.Contains(t, out, "post number 12")
	assert.NotContains(t, out, "Buy anvils")

	buf.Reset()
	require.NoError(t, s.Show(context.Background(), ListRequest{Kind: api.KindPosts, Pages: 1}))
	out = buf.String()
	assert.Contains(t, out, "Buy anvils")
	assert.NotContains(t, out, "post number 10")
	assert.Contains(t, out, "More available")
}

func TestShowSurfacesServerError(t *testing.T) {
	_, s, _ := setup(t, "tok")
	captureOutput(t)

	err := s.Show(context.Background(), ListRequest{Kind: api.KindProducts})
	assert.Equal(t, clierrors.ErrorTypeServer, cliType(t, err))
}

func TestShowRejectsBadRequests(t *testing.T) {
	_, s, _ := setup(t, "tok")

	err := s.Show(context.Background(), ListRequest{Kind: api.KindAds, Filters: map[string]string{"category": "x"}})
	assert.Equal(t, clierrors.ErrorTypeValidation, cliType(t, err))

	err = s.Show(context.Background(), ListRequest{Kind: "followers"})
	assert.Equal(t, clierrors.ErrorTypeValidation, cliType(t, err))
}

func TestRecoverSessionOnlyForSessionErrors(t *testing.T) {
	_, svc, _ := setup(t, "tok")
	ctx := context.Background()
	expired := &api.APIError{StatusCode: http.StatusUnauthorized, Code: "token_expired"}

	assert.NoError(t, svc.recoverSession(ctx, expired), "no recovery configured")

	svc.WithRecovery(auth.NewSessionRecovery(svc.http, filepath.Join(t.TempDir(), "credentials")))
	assert.NoError(t, svc.recoverSession(ctx, errors.New("connection refused")))

	err := svc.recoverSession(ctx, expired)
	require.Error(t, err)
	assert.Equal(t, clierrors.ErrorTypeSignedOut, cliType(t, err))
}

func TestTitleListsFilters(t *testing.T) {
	assert.Equal(t, "products category=books q=go", title(ListRequest{
		Kind:    api.KindProducts,
		Filters: map[string]string{"q": "go", "category": "books"},
	}))
	assert.Equal(t, "conversations", title(ListRequest{Kind: api.KindConversations}))
}
