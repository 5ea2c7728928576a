package client

import (
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/zfogg/feedline/pkg/config"
	"github.com/zfogg/feedline/pkg/logger"
)

const UserAgent = "Feedline-CLI/0.1.0"

// TokenSource returns the bearer token to attach to a request, if any.
type TokenSource func() (string, bool)

var (
	httpClient *resty.Client
	mu         sync.Mutex
	tokens     TokenSource
)

// Init initializes the HTTP client from configuration
func Init() {
	timeout := time.Duration(config.GetInt("api.timeout")) * time.Second
	c := New(config.GetString("api.base_url"), timeout)

	mu.Lock()
	httpClient = c
	mu.Unlock()
}

// New builds a client for baseURL. Requests are never retried; a failed
// page fetch surfaces to the list that asked for it.
func New(baseURL string, timeout time.Duration) *resty.Client {
	json := jsoniter.ConfigCompatibleWithStandardLibrary

	c := resty.New()
	c.SetBaseURL(baseURL)
	c.SetTimeout(timeout)
	c.SetRetryCount(0)
	c.SetHeader("User-Agent", UserAgent)
	c.SetHeader("Accept", "application/json")
	c.SetJSONMarshaler(json.Marshal)
	c.SetJSONUnmarshaler(json.Unmarshal)

	c.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		requestID := uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)

		if req.Header.Get("Authorization") == "" {
			if token, ok := currentToken(); ok {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL, "request_id", requestID)
		return nil
	})

	c.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response",
			"status", resp.StatusCode(),
			"request_id", resp.Request.Header.Get("X-Request-ID"),
			"elapsed", resp.Time())
		return nil
	})

	return c
}

// GetClient returns the HTTP client
func GetClient() *resty.Client {
	mu.Lock()
	c := httpClient
	mu.Unlock()
	if c == nil {
		Init()
		mu.Lock()
		c = httpClient
		mu.Unlock()
	}
	return c
}

// SetTokenSource installs the source consulted for every request's
// bearer token.
func SetTokenSource(src TokenSource) {
	mu.Lock()
	tokens = src
	mu.Unlock()
}

// SetAuthToken pins a fixed bearer token
func SetAuthToken(token string) {
	SetTokenSource(func() (string, bool) { return token, token != "" })
}

// ClearAuthToken removes the token source
func ClearAuthToken() {
	SetTokenSource(nil)
}

func currentToken() (string, bool) {
	mu.Lock()
	src := tokens
	mu.Unlock()
	if src == nil {
		return "", false
	}
	return src()
}
