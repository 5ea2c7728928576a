package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfogg/feedline/pkg/credentials"
)

func TestFileSessionRevoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, credentials.SaveTo(path, &credentials.Credentials{AccessToken: "tok"}))

	sess, err := OpenSession(context.Background(), SessionOptions{CredentialsPath: path})
	require.NoError(t, err)
	defer sess.Close()

	token, ok := sess.Token()
	require.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.True(t, sess.Manager().Active())

	require.NoError(t, sess.Revoke())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.Eventually(t, func() bool { return !sess.Manager().Active() }, 2*time.Second, 20*time.Millisecond)
}

func TestStaticSessionRevoke(t *testing.T) {
	sess, err := OpenSession(context.Background(), SessionOptions{Token: "tok"})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Revoke())
	_, ok := sess.Token()
	assert.False(t, ok)
	assert.False(t, sess.Manager().Active())
}
