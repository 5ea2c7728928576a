package devserver

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/zfogg/feedline/pkg/logger"
	ws "github.com/zfogg/feedline/pkg/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

type conn struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
}

// hub tracks connected sockets by user.
type hub struct {
	mu    sync.Mutex
	conns map[*conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*conn]struct{})}
}

func (h *hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Len returns the number of connected sockets.
func (h *hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// publish queues msg for every socket of userID, or for all sockets when
// userID is empty. Slow sockets miss the message.
func (h *hub) publish(userID string, msgType ws.MessageType, payload interface{}) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Encoding event", "type", msgType, "error", err)
		return 0
	}
	data, err := json.Marshal(ws.Message{Type: msgType, Payload: raw})
	if err != nil {
		logger.Error("Encoding event", "type", msgType, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.conns {
		if userID != "" && c.userID != userID {
			continue
		}
		select {
		case c.send <- data:
			sent++
		default:
			logger.Warn("Dropping event for slow socket", "user", c.userID, "type", msgType)
		}
	}
	return sent
}

// serve runs the socket until the peer goes away or ctx ends.
func (h *hub) serve(ctx context.Context, c *conn) {
	h.add(c)
	defer h.remove(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.readPump(ctx, cancel, c)

	for {
		select {
		case <-ctx.Done():
			c.ws.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case data := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				logger.Debug("Socket write failed", "user", c.userID, "error", err)
				return
			}
		}
	}
}

// readPump answers heartbeats and ends the socket when the peer closes it.
func (h *hub) readPump(ctx context.Context, cancel context.CancelFunc, c *conn) {
	defer cancel()

	pong, _ := json.Marshal(ws.Message{Type: ws.MessageTypePong})
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.Debug("Socket read failed", "user", c.userID, "error", err)
			}
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == ws.MessageTypeHeartbeat {
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}
