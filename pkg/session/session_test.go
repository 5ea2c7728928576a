package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/credentials"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/pagination"
)

type post struct {
	ID string
}

func postKey(p post) string { return p.ID }

func tokenFor(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// accountFetcher serves pages whose items are tagged with the subject the
// provider reports at call time. Cursors c1..c(n-1) chain n pages.
type accountFetcher struct {
	provider Provider
	pages    int

	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (f *accountFetcher) FetchPage(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.Page[post], error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	token, _ := f.provider.CurrentToken()
	who := IdentityKey(token)

	n := 0
	if cursor != nil {
		_, err := fmt.Sscanf(string(*cursor), "c%d", &n)
		if err != nil {
			return nil, err
		}
	}
	page := &pagination.Page[post]{
		Items:      []post{{ID: fmt.Sprintf("%s/%d", who, n)}},
		Pagination: &pagination.Info{},
	}
	if n+1 < f.pages {
		page.Pagination.HasNextPage = true
		page.Pagination.NextCursor = pagination.CursorPtr(pagination.Cursor(fmt.Sprintf("c%d", n+1)))
	}
	return page, nil
}

func (f *accountFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func wait(t *testing.T, c *feed.Controller[post]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestIdentityKey(t *testing.T) {
	alice := tokenFor(t, "alice")
	aliceAgain, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "iat": 42}).SignedString([]byte("other"))
	require.NoError(t, err)

	assert.Equal(t, "", IdentityKey(""))
	assert.Equal(t, "user:alice", IdentityKey(alice))
	assert.Equal(t, IdentityKey(alice), IdentityKey(aliceAgain))
	assert.NotEqual(t, IdentityKey(alice), IdentityKey(tokenFor(t, "bob")))

	opaque := IdentityKey("opaque-session-token")
	assert.Contains(t, opaque, "token:")
	assert.Equal(t, opaque, IdentityKey("opaque-session-token"))
	assert.NotEqual(t, opaque, IdentityKey("another-opaque-token"))
}

func TestStaticProviderNotifies(t *testing.T) {
	p := NewStaticProvider("")
	_, ok := p.CurrentToken()
	assert.False(t, ok)

	var got []string
	cancel := p.Subscribe(func(token string) { got = append(got, token) })

	p.Set("a")
	p.Set("a")
	p.Revoke()
	cancel()
	cancel()
	p.Set("b")

	assert.Equal(t, []string{"a", ""}, got)
	token, ok := p.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "b", token)
}

func TestSignedOutListIssuesNoFetch(t *testing.T) {
	p := NewStaticProvider("")
	f := &accountFetcher{provider: p, pages: 2}
	m := NewManager(context.Background(), p, Options{})
	defer m.Close()

	c := Open[post](m, "posts", nil, f, ListOptions[post]{Limit: 10, Key: postKey, AutoLoad: true})

	assert.False(t, c.Load(context.Background()))
	assert.False(t, c.TriggerNearEnd(context.Background()))
	assert.Equal(t, 0, f.callCount())
	assert.False(t, c.FetchState().Enabled)
	assert.Equal(t, 0, m.Store().Len())

	p.Set(tokenFor(t, "alice"))
	wait(t, c)

	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, []post{{ID: "user:alice/0"}}, c.Items())
	assert.Equal(t, 1, m.Store().Len())
}

func TestIdentityChangeEmptiesViewBeforeRefetch(t *testing.T) {
	p := NewStaticProvider(tokenFor(t, "alice"))
	f := &accountFetcher{provider: p, pages: 5}
	m := NewManager(context.Background(), p, Options{})
	defer m.Close()

	changes := 0
	var changesMu sync.Mutex
	c := Open[post](m, "posts", map[string]string{"type": "post"}, f, ListOptions[post]{
		Limit:    10,
		Key:      postKey,
		AutoLoad: true,
		OnChange: func() {
			changesMu.Lock()
			changes++
			changesMu.Unlock()
		},
	})
	ctx := context.Background()
	wait(t, c)
	require.True(t, c.TriggerNearEnd(ctx))
	wait(t, c)
	require.True(t, c.TriggerNearEnd(ctx))
	wait(t, c)
	require.Len(t, c.Items(), 3)
	assert.Equal(t, "user:alice", m.Identity())

	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	p.Set(tokenFor(t, "bob"))

	snap := c.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Pages)
	assert.True(t, snap.IsInitialLoading)
	assert.Equal(t, "user:bob", m.Identity())
	for _, k := range m.Store().Keys() {
		assert.NotEqual(t, "user:alice", k.Identity)
	}

	close(gate)
	wait(t, c)

	assert.Equal(t, []post{{ID: "user:bob/0"}}, c.Items())
	assert.Equal(t, feed.Idle, c.State())
	changesMu.Lock()
	assert.GreaterOrEqual(t, changes, 5)
	changesMu.Unlock()
}

func TestInFlightResultFromOldIdentityIsDropped(t *testing.T) {
	p := NewStaticProvider(tokenFor(t, "alice"))
	gate := make(chan struct{})
	f := &accountFetcher{provider: p, pages: 3, gate: gate}
	m := NewManager(context.Background(), p, Options{})
	defer m.Close()

	c := Open[post](m, "notifications", nil, f, ListOptions[post]{Key: postKey, AutoLoad: true})
	require.Equal(t, feed.Fetching, c.State())

	p.Revoke()
	close(gate)

	assert.Empty(t, c.Items())
	assert.False(t, c.FetchState().Enabled)
	assert.Equal(t, feed.Idle, c.State())
	assert.Equal(t, 0, m.Store().Len())
	assert.False(t, m.Active())
}

func TestTokenRefreshKeepsLists(t *testing.T) {
	p := NewStaticProvider(tokenFor(t, "alice"))
	f := &accountFetcher{provider: p, pages: 3}
	m := NewManager(context.Background(), p, Options{})
	defer m.Close()

	c := Open[post](m, "posts", nil, f, ListOptions[post]{Key: postKey, AutoLoad: true})
	wait(t, c)

	refreshed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "iat": 7}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	p.Set(refreshed)

	assert.Len(t, c.Items(), 1)
	assert.Equal(t, 1, f.callCount())
}

func TestResetReinstallsCollection(t *testing.T) {
	p := NewStaticProvider(tokenFor(t, "alice"))
	f := &accountFetcher{provider: p, pages: 1}
	m := NewManager(context.Background(), p, Options{})
	defer m.Close()

	c := Open[post](m, "ads", map[string]string{"status": "active"}, f, ListOptions[post]{Key: postKey, AutoLoad: true})
	wait(t, c)
	require.Equal(t, feed.Exhausted, c.State())

	c.Reset()
	assert.Equal(t, feed.Idle, c.State())
	assert.Empty(t, c.Items())
	require.Equal(t, 1, m.Store().Len())
	assert.Equal(t, "status=active", m.Store().Keys()[0].Filters)

	require.True(t, c.Load(context.Background()))
	wait(t, c)
	assert.Len(t, c.Items(), 1)
}

func TestMarkFreshAndClose(t *testing.T) {
	p := NewStaticProvider(tokenFor(t, "alice"))
	f := &accountFetcher{provider: p, pages: 1}
	m := NewManager(context.Background(), p, Options{})

	posts := Open[post](m, "posts", nil, f, ListOptions[post]{Key: postKey})
	notes := Open[post](m, "notifications", nil, f, ListOptions[post]{Key: postKey})
	assert.Equal(t, 2, m.Lists())
	assert.Equal(t, 2, m.Store().Len())

	assert.Equal(t, 1, m.MarkFresh("posts", 3))
	assert.Equal(t, 0, m.MarkFresh("products", 1))
	assert.Equal(t, 3, posts.FetchState().FreshItems)
	assert.Equal(t, 0, notes.FetchState().FreshItems)

	notes.Close()
	assert.Equal(t, 1, m.Lists())
	assert.Equal(t, 1, m.Store().Len())

	m.Close()
	assert.Equal(t, 0, m.Lists())
	assert.Equal(t, 0, m.Store().Len())
	assert.False(t, posts.Load(context.Background()))

	p.Set(tokenFor(t, "bob"))
	assert.Equal(t, "user:alice", m.Identity())
}

func TestFileProviderFollowsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	alice := tokenFor(t, "alice")
	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: alice, ExpiresAt: time.Now().Add(time.Hour)}))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	token, ok := p.CurrentToken()
	require.True(t, ok)
	assert.Equal(t, alice, token)

	seen := make(chan string, 4)
	cancel := p.Subscribe(func(token string) { seen <- token })
	defer cancel()

	bob := tokenFor(t, "bob")
	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: bob, ExpiresAt: time.Now().Add(time.Hour)}))

	select {
	case got := <-seen:
		assert.Equal(t, bob, got)
	case <-time.After(3 * time.Second):
		t.Fatal("credentials change was not observed")
	}

	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: bob, ExpiresAt: time.Now().Add(-time.Minute)}))
	require.Eventually(t, func() bool {
		_, ok := p.CurrentToken()
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestFileProviderMissingFile(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "credentials"))
	require.NoError(t, err)
	defer p.Close()

	_, ok := p.CurrentToken()
	assert.False(t, ok)
}
