// Package auth keeps the stored session usable by refreshing the access
// token before it expires.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/credentials"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/logger"
)

// SessionRecovery refreshes the credentials stored at one path. Writing
// the refreshed token back to the file is what a file-backed session
// follows; the identity does not change, so open lists are kept.
type SessionRecovery struct {
	client     *resty.Client
	path       string
	maxRetries int
	retryDelay time.Duration
}

// NewSessionRecovery creates a session recovery handler
func NewSessionRecovery(c *resty.Client, path string) *SessionRecovery {
	return &SessionRecovery{
		client:     c,
		path:       path,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// RecoverSession exchanges the refresh token for a new access token. A
// rejected refresh token is not retried.
func (sr *SessionRecovery) RecoverSession(ctx context.Context) error {
	logger.Debug("Attempting to recover session", "path", sr.path)

	creds, err := credentials.LoadFrom(sr.path)
	if err != nil {
		return err
	}
	if creds == nil {
		return clierrors.SignedOutError()
	}
	if creds.RefreshToken == "" {
		return clierrors.SessionExpiredError()
	}

	var lastErr error
	for attempt := 1; attempt <= sr.maxRetries; attempt++ {
		logger.Debug("Refreshing token", "attempt", attempt)

		resp, err := api.Refresh(ctx, sr.client, creds.RefreshToken)
		if err == nil {
			creds.AccessToken = resp.AccessToken
			if resp.RefreshToken != "" {
				creds.RefreshToken = resp.RefreshToken
			}
			creds.ExpiresAt = time.Time{}
			if resp.ExpiresIn > 0 {
				creds.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
			}
			return credentials.SaveTo(sr.path, creds)
		}
		lastErr = err

		if api.IsUnauthorized(err) {
			return clierrors.SessionExpiredError().WithCause(err)
		}

		if attempt < sr.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sr.retryDelay):
			}
		}
	}

	logger.Warn("Session recovery failed", "attempts", sr.maxRetries, "error", lastErr)
	return clierrors.CategorizeError(lastErr)
}

// EnsureFresh refreshes the session when the access token expires within
// skew. Sessions without an expiry, or without stored credentials, are
// left alone.
func (sr *SessionRecovery) EnsureFresh(ctx context.Context, skew time.Duration) error {
	creds, err := credentials.LoadFrom(sr.path)
	if err != nil || creds == nil || creds.ExpiresAt.IsZero() {
		return err
	}
	if time.Until(creds.ExpiresAt) > skew {
		return nil
	}
	return sr.RecoverSession(ctx)
}

// IsSessionError checks if an error means the access token is no longer
// accepted
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}
	if api.IsUnauthorized(err) {
		return true
	}
	var cliErr *clierrors.CLIError
	return errors.As(err, &cliErr) && cliErr.Type == clierrors.ErrorTypeSessionExpired
}

// HandleSessionError recovers the session after a session error. Other
// errors are returned unchanged.
func (sr *SessionRecovery) HandleSessionError(ctx context.Context, err error) error {
	if !IsSessionError(err) {
		return err
	}

	logger.Debug("Handling session error with recovery")

	if recoveryErr := sr.RecoverSession(ctx); recoveryErr != nil {
		logger.Error("Session recovery failed", "error", recoveryErr)
		return recoveryErr
	}
	return nil
}
