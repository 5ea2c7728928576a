package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	auth      string
	requestID string
	userAgent string
}

func recordingServer(t *testing.T, status int, seen chan<- seenRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- seenRequest{
			auth:      r.Header.Get("Authorization"),
			requestID: r.Header.Get("X-Request-ID"),
			userAgent: r.Header.Get("User-Agent"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestGetClientSingleton validates that GetClient returns same instance
func TestGetClientSingleton(t *testing.T) {
	httpClient = nil

	client1 := GetClient()
	client2 := GetClient()

	require.NotNil(t, client1)
	assert.Same(t, client1, client2)
}

// TestClientInitializesWithDefaults validates client gets default values
func TestClientInitializesWithDefaults(t *testing.T) {
	c := New("http://example.invalid", 5*time.Second)

	assert.Equal(t, UserAgent, c.Header.Get("User-Agent"))
	assert.Equal(t, "http://example.invalid", c.BaseURL)
	assert.Equal(t, 0, c.RetryCount)
}

func TestTokenSourceIsConsultedPerRequest(t *testing.T) {
	defer ClearAuthToken()

	seen := make(chan seenRequest, 3)
	srv := recordingServer(t, http.StatusNoContent, seen)
	c := New(srv.URL, 5*time.Second)

	token := "first"
	SetTokenSource(func() (string, bool) { return token, token != "" })

	_, err := c.R().Get("/api/v1/feed")
	require.NoError(t, err)
	first := <-seen
	assert.Equal(t, "Bearer first", first.auth)
	assert.Equal(t, UserAgent, first.userAgent)
	assert.NotEmpty(t, first.requestID)

	token = "second"
	_, err = c.R().Get("/api/v1/feed")
	require.NoError(t, err)
	second := <-seen
	assert.Equal(t, "Bearer second", second.auth)
	assert.NotEqual(t, first.requestID, second.requestID)

	token = ""
	_, err = c.R().Get("/api/v1/feed")
	require.NoError(t, err)
	assert.Empty(t, (<-seen).auth)
}

func TestExplicitAuthorizationWins(t *testing.T) {
	SetAuthToken("ambient")
	defer ClearAuthToken()

	seen := make(chan seenRequest, 1)
	srv := recordingServer(t, http.StatusOK, seen)
	c := New(srv.URL, 5*time.Second)

	_, err := c.R().SetHeader("Authorization", "Bearer explicit").Post("/api/v1/auth/logout")
	require.NoError(t, err)
	assert.Equal(t, "Bearer explicit", (<-seen).auth)
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	seen := make(chan seenRequest, 4)
	srv := recordingServer(t, http.StatusServiceUnavailable, seen)
	c := New(srv.URL, 5*time.Second)

	resp, err := c.R().Get("/api/v1/notifications")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
	assert.Len(t, seen, 1)
}
