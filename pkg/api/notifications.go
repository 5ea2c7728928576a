package api

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/zfogg/feedline/pkg/logger"
)

// GetUnreadCount retrieves the count of unread notifications
func GetUnreadCount(ctx context.Context, c *resty.Client) (int, error) {
	logger.Debug("Fetching unread notification count")

	var response struct {
		UnreadCount int `json:"unread_count"`
	}

	resp, err := orShared(c).
		R().
		SetContext(ctx).
		SetResult(&response).
		Get("/api/v1/notifications/unread/count")

	if err := CheckResponse(resp, err); err != nil {
		return 0, err
	}

	return response.UnreadCount, nil
}

// MarkAllNotificationsAsRead marks all notifications as read
func MarkAllNotificationsAsRead(ctx context.Context, c *resty.Client) error {
	logger.Debug("Marking all notifications as read")

	resp, err := orShared(c).
		R().
		SetContext(ctx).
		Patch("/api/v1/notifications/read-all")

	return CheckResponse(resp, err)
}
