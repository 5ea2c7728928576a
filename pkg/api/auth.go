package api

import (
	"context"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"

	"github.com/zfogg/feedline/pkg/client"
	"github.com/zfogg/feedline/pkg/logger"
)

func orShared(c *resty.Client) *resty.Client {
	if c == nil {
		return client.GetClient()
	}
	return c
}

// Login authenticates user with email and password
func Login(ctx context.Context, c *resty.Client, email, password string) (*LoginResponse, error) {
	logger.Debug("Attempting login", "email", email)

	reqBody, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	resp, err := orShared(c).
		R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post("/api/v1/auth/login")

	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}

	var loginResp LoginResponse
	if err := json.Unmarshal(resp.Body(), &loginResp); err != nil {
		return nil, err
	}

	logger.Debug("Login successful", "username", loginResp.User.Username)
	return &loginResp, nil
}

// Logout ends the server-side session for token
func Logout(ctx context.Context, c *resty.Client, token string) error {
	logger.Debug("Logging out")

	resp, err := orShared(c).
		R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		Post("/api/v1/auth/logout")

	return CheckResponse(resp, err)
}

// Refresh exchanges a refresh token for a new access token
func Refresh(ctx context.Context, c *resty.Client, refreshToken string) (*LoginResponse, error) {
	logger.Debug("Refreshing access token")

	resp, err := orShared(c).
		R().
		SetContext(ctx).
		SetBody(RefreshRequest{RefreshToken: refreshToken}).
		SetResult(&LoginResponse{}).
		Post("/api/v1/auth/refresh")

	if err := CheckResponse(resp, err); err != nil {
		return nil, err
	}
	return resp.Result().(*LoginResponse), nil
}
