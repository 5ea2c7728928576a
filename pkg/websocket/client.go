package websocket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/zfogg/feedline/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeNewPost        MessageType = "new_post"
	MessageTypeNotification   MessageType = "notification"
	MessageTypeNewMessage     MessageType = "new_message"
	MessageTypeSessionRevoked MessageType = "session_revoked"
	MessageTypeHeartbeat      MessageType = "heartbeat"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"

	// MessageTypeAny subscribes to every message
	MessageTypeAny MessageType = ""
)

// Message is one frame from the server
type Message struct {
	Type    MessageType         `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

type NewPostPayload struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id"`
	Count    int    `json:"count,omitempty"`
}

type NotificationPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type SessionRevokedPayload struct {
	Reason string `json:"reason"`
}

// Config holds WebSocket client configuration
type Config struct {
	URL                  string
	ConnectTimeoutMs     int
	HeartbeatIntervalMs  int
	ReconnectBaseDelayMs int
	ReconnectMaxDelayMs  int
	MaxReconnectAttempts int
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8787/api/v1/ws",
		ConnectTimeoutMs:     15000,
		HeartbeatIntervalMs:  30000,
		ReconnectBaseDelayMs: 2000,
		ReconnectMaxDelayMs:  30000,
		MaxReconnectAttempts: -1, // unlimited
	}
}

// ConfigForURL returns the default configuration pointed at rawURL
func ConfigForURL(rawURL string) Config {
	cfg := DefaultConfig()
	if rawURL != "" {
		cfg.URL = rawURL
	}
	return cfg
}

// ConnectionState represents the state of the WebSocket connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesSent     int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

type listener struct {
	id int
	fn func(Message)
}

// Client manages WebSocket connections
type Client struct {
	config Config
	state  atomic.Value // ConnectionState

	mu                sync.RWMutex
	conn              *websocket.Conn
	token             string
	reconnectAttempts int
	reconnectDelay    int

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[MessageType][]listener
	nextID      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		config:         config,
		listeners:      make(map[MessageType][]listener),
		ctx:            ctx,
		cancel:         cancel,
		reconnectDelay: config.ReconnectBaseDelayMs,
	}
	client.state.Store(StateDisconnected)
	return client
}

// SetAuthToken sets the token used for the next (re)connect
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Connect establishes the WebSocket connection
func (c *Client) Connect(ctx context.Context, token string) error {
	c.SetAuthToken(token)
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError)
		c.recordError(err.Error())
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.reconnectAttempts = 0
	c.reconnectDelay = c.config.ReconnectBaseDelayMs
	c.mu.Unlock()

	c.setState(StateConnected)
	c.recordConnected()
	c.startLoops(conn)

	logger.Debug("WebSocket connected", "url", c.config.URL)
	return nil
}

// Disconnect closes the WebSocket connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.cancel()

	c.mu.Lock()
	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(StateDisconnected)
	c.recordDisconnected()

	logger.Debug("WebSocket disconnected")
	return nil
}

// Done is closed once Disconnect has been called
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// State returns the connection state
func (c *Client) State() ConnectionState {
	return c.getState()
}

// On subscribes to a message type. Callbacks run on the read loop and
// must not block.
func (c *Client) On(msgType MessageType, callback func(Message)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[msgType] = append(c.listeners[msgType], listener{id: id, fn: callback})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()

		ls := c.listeners[msgType]
		for i, l := range ls {
			if l.id == id {
				c.listeners[msgType] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}

// Send sends a message to the server
func (c *Client) Send(msgType MessageType, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	var raw jsoniter.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}

	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.recordMessageSent()
	return nil
}

// GetStats returns connection statistics
func (c *Client) GetStats() ConnectionStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.stats
}

// Private methods

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(c.config.ConnectTimeoutMs) * time.Millisecond
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	return conn, err
}

func (c *Client) startLoops(conn *websocket.Conn) {
	c.wg.Add(2)
	go c.readLoop(conn)
	go c.heartbeatLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.recordError(err.Error())
			logger.Warn("WebSocket read error", "error", err)
			c.handleDisconnect(conn)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Ignoring malformed WebSocket message", "error", err)
			continue
		}

		c.recordMessageReceived()
		c.emit(msg)
	}
}

func (c *Client) emit(msg Message) {
	c.listenersMu.RLock()
	typed := append([]listener(nil), c.listeners[msg.Type]...)
	var all []listener
	if msg.Type != MessageTypeAny {
		all = append([]listener(nil), c.listeners[MessageTypeAny]...)
	}
	c.listenersMu.RUnlock()

	for _, l := range typed {
		l.fn(msg)
	}
	for _, l := range all {
		l.fn(msg)
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	if c.config.HeartbeatIntervalMs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(c.config.HeartbeatIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				return
			}
			if err := c.Send(MessageTypeHeartbeat, nil); err != nil {
				logger.Debug("Failed to send heartbeat", "error", err)
			}
		}
	}
}

func (c *Client) handleDisconnect(old *websocket.Conn) {
	c.mu.Lock()
	if c.conn == old {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.recordDisconnected()

	// Attempt reconnection with exponential backoff
	for {
		c.mu.RLock()
		attempts, delay := c.reconnectAttempts, c.reconnectDelay
		c.mu.RUnlock()

		if c.config.MaxReconnectAttempts >= 0 && attempts >= c.config.MaxReconnectAttempts {
			c.setState(StateError)
			logger.Error("Max reconnection attempts reached", "attempts", attempts)
			return
		}

		backoff := time.Duration(delay) * time.Millisecond
		jitter := time.Duration(rand.Intn(250)) * time.Millisecond
		waitTime := backoff + jitter

		logger.Debug("Reconnecting WebSocket", "attempt", attempts+1, "wait_ms", waitTime.Milliseconds())

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(waitTime):
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.recordError(err.Error())
			c.mu.Lock()
			c.reconnectAttempts++
			// Exponential backoff: 2x each time, capped at max
			c.reconnectDelay = int(math.Min(
				float64(c.reconnectDelay*2),
				float64(c.config.ReconnectMaxDelayMs),
			))
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.reconnectAttempts = 0
		c.reconnectDelay = c.config.ReconnectBaseDelayMs
		c.mu.Unlock()

		c.setState(StateConnected)
		c.recordConnected()
		c.statsLock.Lock()
		c.stats.ReconnectCount++
		c.statsLock.Unlock()

		logger.Debug("WebSocket reconnected")

		c.startLoops(conn)
		return
	}
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(state)
}

func (c *Client) getState() ConnectionState {
	return c.state.Load().(ConnectionState)
}

func (c *Client) recordMessageReceived() {
	c.statsLock.Lock()
	c.stats.MessagesReceived++
	c.statsLock.Unlock()
}

func (c *Client) recordMessageSent() {
	c.statsLock.Lock()
	c.stats.MessagesSent++
	c.statsLock.Unlock()
}

func (c *Client) recordError(errMsg string) {
	c.statsLock.Lock()
	c.stats.LastError = errMsg
	c.statsLock.Unlock()
}

func (c *Client) recordConnected() {
	c.statsLock.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordDisconnected() {
	c.statsLock.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsLock.Unlock()
}
