// Package devserver is a self-contained implementation of the feed API for
// local development and end-to-end tests. Content is generated from a seed
// and lives in memory.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/zfogg/feedline/pkg/api"
	"github.com/zfogg/feedline/pkg/logger"
	"github.com/zfogg/feedline/pkg/pagecache"
	ws "github.com/zfogg/feedline/pkg/websocket"
)

const (
	accessTTL  = time.Hour
	refreshTTL = 30 * 24 * time.Hour

	tokenAccess  = "access"
	tokenRefresh = "refresh"

	userKey = "user_id"
)

// Options configures a Server.
type Options struct {
	Seed   uint64
	Sizes  Sizes
	Secret []byte
	Now    func() time.Time
}

type claims struct {
	Username string `json:"username"`
	Use      string `json:"use"`
	Epoch    int    `json:"epoch"`
	jwt.RegisteredClaims
}

// Server serves the feed API over gin.
type Server struct {
	secret []byte
	now    func() time.Time
	router *gin.Engine
	mux    *http.ServeMux
	hub    *hub
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	data   *Dataset
	epochs map[string]int
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sizes == (Sizes{}) {
		opts.Sizes = DefaultSizes()
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("feedline-dev-secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		secret: opts.Secret,
		now:    opts.Now,
		hub:    newHub(),
		ctx:    ctx,
		cancel: cancel,
		data:   Seed(opts.Seed, opts.Sizes, opts.Now()),
		epochs: make(map[string]int),
	}
	s.router = s.routes()

	// The socket upgrade hijacks the connection, which gin refuses once
	// its writer has been touched, so it is served beside the router.
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/api/v1/ws", s.socket)
	s.mux.Handle("/", s.router)
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/login", s.login)
		authGroup.POST("/refresh", s.refresh)
		authGroup.POST("/logout", s.authMiddleware(), s.logout)

		lists := v1.Group("", s.authMiddleware())
		lists.GET("/feed", s.feed)
		lists.GET("/marketplace/products", s.products)
		lists.GET("/ads", s.ads)
		lists.GET("/notifications", s.notifications)
		lists.GET("/conversations", s.conversations)
		lists.GET("/notifications/unread/count", s.unreadCount)
		lists.PATCH("/notifications/read-all", s.readAll)
	}
	return r
}

func (s *Server) Handler() http.Handler { return s.mux }

// Dataset returns the served content.
func (s *Server) Dataset() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Sockets returns the number of connected realtime clients.
func (s *Server) Sockets() int { return s.hub.Len() }

// Close disconnects every realtime client.
func (s *Server) Close() { s.cancel() }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Dev server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// AnnouncePosts tells every connected client that n posts are newer than
// what they have loaded.
func (s *Server) AnnouncePosts(authorID string, n int) int {
	return s.hub.publish("", ws.MessageTypeNewPost, ws.NewPostPayload{AuthorID: authorID, Count: n})
}

// Notify sends a notification event to userID.
func (s *Server) Notify(userID, kind string) int {
	return s.hub.publish(userID, ws.MessageTypeNotification, ws.NotificationPayload{ID: strconv.FormatInt(s.now().UnixNano(), 36), Type: kind})
}

// Revoke invalidates every token issued to userID so far and tells its
// connected clients. Tokens issued afterwards are accepted.
func (s *Server) Revoke(userID, reason string) int {
	s.mu.Lock()
	s.epochs[userID]++
	s.mu.Unlock()
	return s.hub.publish(userID, ws.MessageTypeSessionRevoked, ws.SessionRevokedPayload{Reason: reason})
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Dev request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Code: code, Message: message})
}

func (s *Server) issue(u api.User, use string, ttl time.Duration) (string, error) {
	now := s.now()
	s.mu.RLock()
	epoch := s.epochs[u.ID]
	s.mu.RUnlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		Use:      use,
		Epoch:    epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        strconv.FormatInt(now.UnixNano(), 36),
		},
	})
	return tok.SignedString(s.secret)
}

func (s *Server) parse(raw, use string) (*claims, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if cl.Use != use {
		return nil, errors.New("wrong token use")
	}

	s.mu.RLock()
	epoch := s.epochs[cl.Subject]
	s.mu.RUnlock()
	if cl.Epoch < epoch {
		return nil, errors.New("session revoked")
	}
	return &cl, nil
}

func (s *Server) respond(c *gin.Context, u api.User) {
	access, err := s.issue(u, tokenAccess, accessTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	refresh, err := s.issue(u, tokenRefresh, refreshTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, api.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(accessTTL.Seconds()),
		User:         u,
	})
}

func (s *Server) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	u, ok := s.Dataset().UserByEmail(req.Email)
	if !ok || req.Password != DevPassword {
		fail(c, http.StatusUnauthorized, "invalid_credentials", "wrong email or password")
		return
	}
	s.respond(c, u)
}

func (s *Server) refresh(c *gin.Context) {
	var req api.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cl, err := s.parse(req.RefreshToken, tokenRefresh)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid_refresh_token", err.Error())
		return
	}
	u, ok := s.Dataset().UserByID(cl.Subject)
	if !ok {
		fail(c, http.StatusUnauthorized, "invalid_refresh_token", "unknown user")
		return
	}
	s.respond(c, u)
}

func (s *Server) logout(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// authenticate checks the access token of r. On failure it returns the
// error code to report.
func (s *Server) authenticate(r *http.Request) (*claims, string, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, "unauthorized", errors.New("no token provided")
	}
	cl, err := s.parse(raw, tokenAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "token_expired", err
		}
		return nil, "unauthorized", err
	}
	return cl, "", nil
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, code, err := s.authenticate(c.Request)
		if err != nil {
			fail(c, http.StatusUnauthorized, code, err.Error())
			return
		}
		c.Set(userKey, cl.Subject)
		c.Next()
	}
}

func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	cl, code, err := s.authenticate(r)
	if err != nil {
		logger.Debug("Dev request", "method", r.Method, "path", r.URL.Path, "status", http.StatusUnauthorized)
		body, _ := json.Marshal(api.ErrorResponse{Code: code, Message: err.Error()})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(body)
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Warn("Socket upgrade failed", "error", err)
		return
	}
	logger.Debug("Socket connected", "user", cl.Subject)
	s.hub.serve(s.ctx, &conn{userID: cl.Subject, ws: sock, send: make(chan []byte, sendBuffer)})
}

func writePage[T any](c *gin.Context, items []T) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := paginate(items, c.Query("cursor"), limit)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_cursor", err.Error())
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) feed(c *gin.Context) {
	items := s.Dataset().Feed
	if kind := c.Query("type"); kind != "" {
		items = pagecache.Filter(items, func(it api.FeedItem) bool { return it.Kind == kind })
	}
	writePage(c, items)
}

func (s *Server) products(c *gin.Context) {
	items := s.Dataset().Products
	if cat := c.Query("category"); cat != "" {
		items = pagecache.Filter(items, func(p api.Product) bool { return p.Category == cat })
	}
	if q := strings.ToLower(c.Query("q")); q != "" {
		items = pagecache.Filter(items, func(p api.Product) bool { return strings.Contains(strings.ToLower(p.Title), q) })
	}
	writePage(c, items)
}

func (s *Server) ads(c *gin.Context) {
	items := s.Dataset().Ads
	if status := c.Query("status"); status != "" {
		items = pagecache.Filter(items, func(a api.Ad) bool { return a.Status == status })
	}
	writePage(c, items)
}

func (s *Server) notifications(c *gin.Context) {
	s.mu.RLock()
	items := append([]api.Notification{}, s.data.Notifications...)
	s.mu.RUnlock()

	if unread, err := strconv.ParseBool(c.Query("unread")); err == nil && unread {
		items = pagecache.Filter(items, func(n api.Notification) bool { return !n.Read })
	}
	writePage(c, items)
}

func (s *Server) conversations(c *gin.Context) {
	writePage(c, s.Dataset().Conversations)
}

func (s *Server) unreadCount(c *gin.Context) {
	s.mu.RLock()
	n := s.data.Unread()
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (s *Server) readAll(c *gin.Context) {
	s.mu.Lock()
	for i := range s.data.Notifications {
		s.data.Notifications[i].Read = true
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{})
}
