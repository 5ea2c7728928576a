package service

import (
	"context"

	"github.com/zfogg/feedline/pkg/credentials"
	"github.com/zfogg/feedline/pkg/feed"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/session"
)

// SessionOptions selects where the session token comes from.
type SessionOptions struct {
	// Token pins a fixed token. When empty the credentials file is
	// followed instead.
	Token           string
	CredentialsPath string

	Observer  feed.Observer
	Threshold float64
}

// Session bundles the token provider and the list manager of one command
// invocation.
type Session struct {
	provider session.Provider
	static   *session.StaticProvider
	file     *session.FileProvider
	path     string
	manager  *session.Manager
}

// OpenSession starts a session scope. Close releases it.
func OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	s := &Session{path: opts.CredentialsPath}

	if opts.Token != "" || opts.CredentialsPath == "" {
		s.static = session.NewStaticProvider(opts.Token)
		s.provider = s.static
	} else {
		fp, err := session.NewFileProvider(opts.CredentialsPath)
		if err != nil {
			return nil, err
		}
		s.file = fp
		s.provider = fp
	}

	s.manager = session.NewManager(ctx, s.provider, session.Options{
		Observer:  opts.Observer,
		Threshold: opts.Threshold,
	})
	return s, nil
}

func (s *Session) Manager() *session.Manager { return s.manager }

// Token returns the current access token.
func (s *Session) Token() (string, bool) {
	return s.provider.CurrentToken()
}

// Subscribe forwards token changes to fn.
func (s *Session) Subscribe(fn func(string)) func() {
	return s.provider.Subscribe(fn)
}

// Revoke ends the session locally. For file-backed sessions the
// credentials are removed and the file watcher propagates the change.
func (s *Session) Revoke() error {
	if s.static != nil {
		s.static.Revoke()
		return nil
	}
	logger.Info("Revoking local session", "path", s.path)
	return credentials.DeleteFrom(s.path)
}

// Reload picks up credentials written by this process, such as a refreshed
// token, without waiting for the file watcher.
func (s *Session) Reload() {
	if s.file != nil {
		s.file.Reload()
	}
}

func (s *Session) Close() {
	s.manager.Close()
	if s.file != nil {
		s.file.Close()
	}
}
