package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/client"
	"github.com/zfogg/feedline/pkg/credentials"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/prompter"
)

func authServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/login":
			fmt.Fprint(w, `{"access_token":"tok","refresh_token":"ref","expires_in":3600,"user":{"id":"u1","username":"alice"}}`)
		case "/api/v1/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/notifications/unread/count":
			fmt.Fprint(w, `{"unread_count":7}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newAuth(srvURL, path, input string) *AuthService {
	return NewAuthService(prompter.New(strings.NewReader(input), io.Discard), client.New(srvURL, 5*time.Second), path)
}

func TestLoginSavesCredentials(t *testing.T) {
	srv, _ := authServer(t)
	path := filepath.Join(t.TempDir(), "credentials")
	captureOutput(t)

	require.NoError(t, newAuth(srv.URL, path, "alice@example.com\nhunter2\n").Login(context.Background()))

	creds, err := credentials.LoadFrom(path)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "tok", creds.AccessToken)
	assert.Equal(t, "alice", creds.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), creds.ExpiresAt, time.Minute)
}

func TestLoginRejectsEmptyEmail(t *testing.T) {
	srv, calls := authServer(t)
	captureOutput(t)

	err := newAuth(srv.URL, filepath.Join(t.TempDir(), "credentials"), "\n").Login(context.Background())
	assert.Equal(t, clierrors.ErrorTypeValidation, cliType(t, err))
	assert.Empty(t, *calls)
}

func TestLogoutRemovesCredentials(t *testing.T) {
	srv, calls := authServer(t)
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: "tok", Username: "alice"}))
	captureOutput(t)

	require.NoError(t, newAuth(srv.URL, path, "").Logout(context.Background()))

	creds, err := credentials.LoadFrom(path)
	require.NoError(t, err)
	assert.Nil(t, creds)
	assert.Equal(t, []string{"POST /api/v1/auth/logout"}, *calls)
}

func TestStatus(t *testing.T) {
	srv, _ := authServer(t)
	path := filepath.Join(t.TempDir(), "credentials")
	buf := captureOutput(t)

	err := newAuth(srv.URL, path, "").Status(context.Background())
	assert.Equal(t, clierrors.ErrorTypeSignedOut, cliType(t, err))

	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: "tok", UserID: "u1", Username: "alice"}))
	require.NoError(t, newAuth(srv.URL, path, "").Status(context.Background()))
	assert.Contains(t, buf.String(), "@alice")
	assert.Contains(t, buf.String(), "7")
	assert.Contains(t, buf.String(), "never")

	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}))
	err = newAuth(srv.URL, path, "").Status(context.Background())
	assert.Equal(t, clierrors.ErrorTypeSessionExpired, cliType(t, err))
}
