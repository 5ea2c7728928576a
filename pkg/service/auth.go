package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/auth"
	"github.com/zfogg/feedline/pkg/credentials"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/formatter"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/prompter"
)

// AuthService manages the stored session
type AuthService struct {
	prompt *prompter.Prompter
	http   *resty.Client
	path   string
}

// NewAuthService creates an auth service storing credentials at path
func NewAuthService(p *prompter.Prompter, c *resty.Client, path string) *AuthService {
	return &AuthService{prompt: p, http: c, path: path}
}

// Login handles user login
func (s *AuthService) Login(ctx context.Context) error {
	creds, err := credentials.LoadFrom(s.path)
	if err != nil {
		logger.Error("Failed to load credentials", "error", err)
		return err
	}

	if creds.IsValid() {
		output.PrintWarning("Already logged in as %s", creds.Username)
		confirm, err := s.prompt.PromptConfirm("Continue with new login?")
		if err != nil {
			return err
		}
		if !confirm {
			return nil
		}
	}

	email, err := s.prompt.PromptString("Email: ")
	if err != nil {
		return err
	}
	if email == "" {
		return clierrors.ValidationError("email", "cannot be empty")
	}

	password, err := s.prompt.PromptPassword("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return clierrors.ValidationError("password", "cannot be empty")
	}

	output.PrintInfo("Authenticating...")
	loginResp, err := api.Login(ctx, s.http, email, password)
	if err != nil {
		return clierrors.CategorizeError(err)
	}

	creds = &credentials.Credentials{
		AccessToken:  loginResp.AccessToken,
		RefreshToken: loginResp.RefreshToken,
		UserID:       loginResp.User.ID,
		Username:     loginResp.User.Username,
	}
	if loginResp.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().Add(time.Duration(loginResp.ExpiresIn) * time.Second)
	}

	if err := credentials.SaveTo(s.path, creds); err != nil {
		output.PrintError("Failed to save credentials: %v", err)
		return err
	}

	output.PrintSuccess("✓ Logged in as %s", formatter.Bold.Sprint("@"+loginResp.User.Username))
	return nil
}

// Logout ends the session on the server and removes local credentials.
// The local session is removed even when the server call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	creds, err := credentials.LoadFrom(s.path)
	if err != nil {
		logger.Error("Failed to load credentials", "error", err)
		return err
	}

	if creds == nil {
		output.PrintWarning("Not logged in")
		return nil
	}

	if err := api.Logout(ctx, s.http, creds.AccessToken); err != nil {
		logger.Warn("Server logout failed", "error", err)
	}

	if err := credentials.DeleteFrom(s.path); err != nil {
		output.PrintError("Failed to delete credentials: %v", err)
		return err
	}

	output.PrintSuccess("✓ Logged out")
	return nil
}

// Refresh exchanges the stored refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context) error {
	if err := auth.NewSessionRecovery(s.http, s.path).RecoverSession(ctx); err != nil {
		return err
	}
	output.PrintSuccess("✓ Session refreshed")
	return nil
}

// Status prints the stored session and the unread notification count
func (s *AuthService) Status(ctx context.Context) error {
	creds, err := credentials.LoadFrom(s.path)
	if err != nil {
		return err
	}

	if creds == nil {
		return clierrors.SignedOutError()
	}
	if creds.IsExpired() {
		return clierrors.SessionExpiredError()
	}

	record := map[string]interface{}{
		"Username": "@" + creds.Username,
		"User ID":  creds.UserID,
		"Expires":  "never",
	}
	if !creds.ExpiresAt.IsZero() {
		record["Expires"] = output.Ago(creds.ExpiresAt)
	}

	unread, err := api.GetUnreadCount(ctx, s.http)
	if err != nil {
		logger.Warn("Could not fetch unread count", "error", err)
		record["Unread"] = "?"
	} else {
		record["Unread"] = fmt.Sprint(unread)
	}

	return output.PrintRecord("Session", record)
}
