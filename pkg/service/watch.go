package service

import (
	"context"
	"time"

	"github.com/zfogg/feedline/pkg/api"
	clierrors "github.com/zfogg/feedline/pkg/errors"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/output"
	"github.com/zfogg/feedline/pkg/websocket"
)

// WatchService applies realtime events to the open lists of a session.
type WatchService struct {
	sess *Session
	ws   *websocket.Client

	// Print echoes every handled event to the output.
	Print bool

	// OnEvent is called after an event changed list state. It runs on the
	// socket read loop.
	OnEvent func()

	revoked chan string
}

// NewWatchService creates a watcher over ws for sess.
func NewWatchService(sess *Session, ws *websocket.Client) *WatchService {
	return &WatchService{sess: sess, ws: ws, revoked: make(chan string, 1)}
}

// Run connects and handles events until ctx ends or the server revokes
// the session.
func (w *WatchService) Run(ctx context.Context) error {
	token, ok := w.sess.Token()
	if !ok {
		return clierrors.SignedOutError()
	}

	unsubs := []func(){
		w.ws.On(websocket.MessageTypeNewPost, w.handleNewPost),
		w.ws.On(websocket.MessageTypeNotification, w.handleNotification),
		w.ws.On(websocket.MessageTypeSessionRevoked, w.handleSessionRevoked),
		w.sess.Subscribe(w.ws.SetAuthToken),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	if err := w.ws.Connect(ctx, token); err != nil {
		return clierrors.NetworkError("Could not open the realtime stream").WithCause(err)
	}
	defer w.ws.Disconnect()

	if w.Print {
		output.PrintInfo("Watching for updates. Press Ctrl+C to stop.")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case reason := <-w.revoked:
		if w.Print {
			output.PrintWarning("Session revoked by the server: %s", reason)
		}
		return clierrors.SessionExpiredError()
	}
}

func (w *WatchService) handleNewPost(msg websocket.Message) {
	var p websocket.NewPostPayload
	if err := msg.Decode(&p); err != nil {
		logger.Warn("Invalid new_post payload", "error", err)
		return
	}
	n := max(p.Count, 1)
	lists := w.sess.Manager().MarkFresh(api.KindPosts, n)
	logger.Debug("New posts announced", "count", n, "lists", lists)

	w.event("%d new post(s) from %s", n, p.AuthorID)
}

func (w *WatchService) handleNotification(msg websocket.Message) {
	var p websocket.NotificationPayload
	if err := msg.Decode(&p); err != nil {
		logger.Warn("Invalid notification payload", "error", err)
		return
	}
	w.sess.Manager().MarkFresh(api.KindNotifications, 1)

	w.event("Notification: %s", p.Type)
}

func (w *WatchService) handleSessionRevoked(msg websocket.Message) {
	var p websocket.SessionRevokedPayload
	if err := msg.Decode(&p); err != nil {
		logger.Warn("Invalid session_revoked payload", "error", err)
	}
	logger.Warn("Session revoked", "reason", p.Reason)

	if err := w.sess.Revoke(); err != nil {
		logger.Error("Failed to revoke local session", "error", err)
	}
	if w.OnEvent != nil {
		w.OnEvent()
	}

	select {
	case w.revoked <- p.Reason:
	default:
	}
}

func (w *WatchService) event(format string, args ...interface{}) {
	if w.Print {
		output.PrintInfo("[%s] "+format, append([]interface{}{time.Now().Format("15:04:05")}, args...)...)
	}
	if w.OnEvent != nil {
		w.OnEvent()
	}
}
