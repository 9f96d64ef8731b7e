// Package svctoken obtains service-to-service tokens from the issuer's
// client-credentials endpoint and caches them until shortly before
// expiry. It also wraps outbound calls with the platform's 401 retry
// discipline: drop the cached token, exchange a fresh one, replay.
package svctoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopmesh/auth"
)

const (
	tokenPath           = "/auth/v1/token"
	defaultSafetyMargin = 30 * time.Second
)

var defaultBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Config identifies this service to the issuer.
type Config struct {
	// IssuerURL is the issuer's base URL, e.g. http://authd:8080.
	IssuerURL string

	// ClientID and ClientSecret are this service's credentials. Both are
	// required; a service missing its secret must fail at startup, not
	// on its first outbound call.
	ClientID     string
	ClientSecret string

	// SafetyMargin is subtracted from the token's own expiry when sizing
	// the cache TTL, so a cached token is never presented moments before
	// it dies. Defaults to 30s.
	SafetyMargin time.Duration

	// Backoff is the wait sequence for retried exchanges and 401
	// replays. Defaults to 500ms, 1s, 2s.
	Backoff []time.Duration
}

// Client exchanges, caches and attaches service tokens.
type Client struct {
	cfg        Config
	cacheKey   string
	cache      TokenCache
	httpClient *http.Client
	logger     *slog.Logger
	nowFn      func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithCache replaces the default in-process cache, typically with a
// RedisCache shared across replicas.
func WithCache(cache TokenCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient replaces the HTTP client used for exchanges and
// outbound calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a Client. Missing credentials are a configuration error
// surfaced immediately.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("svctoken: issuer url is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("svctoken: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("svctoken: client secret is required")
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = defaultSafetyMargin
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = defaultBackoff
	}

	c := &Client{
		cfg:      cfg,
		cacheKey: "svctoken:" + cfg.ClientID,
		logger:   slog.Default().With("module", "svctoken", "client_id", cfg.ClientID),
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c, nil
}

// Token returns a service token: the cached one while it is still fresh,
// otherwise a newly exchanged one. The cache TTL comes from the issued
// token's own exp claim, peeked without signature verification, which is
// safe here because the token arrived straight from the issuer over the
// connection we opened.
func (c *Client) Token(ctx context.Context) (string, error) {
	cached, err := c.cache.Get(ctx, c.cacheKey)
	if err != nil {
		c.logger.Warn("token cache read failed", "error", err.Error())
	} else if cached != "" {
		return cached, nil
	}

	token, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	if exp, err := auth.PeekExpiry(token); err != nil {
		c.logger.Warn("issued token has unreadable expiry, not caching", "error", err.Error())
	} else if ttl := exp.Sub(c.nowFn()) - c.cfg.SafetyMargin; ttl > 0 {
		if err := c.cache.Set(ctx, c.cacheKey, token, ttl); err != nil {
			c.logger.Warn("token cache write failed", "error", err.Error())
		}
	}
	return token, nil
}

// Invalidate drops the cached token so the next Token call exchanges a
// fresh one.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.cacheKey)
}

// Do sends the request with a service token attached. When the peer
// answers 401 the cached token is dropped, a fresh one is exchanged and
// the request replayed, once per backoff step, honoring the request
// context during waits. Bodied requests need GetBody for replays;
// http.NewRequest sets it for the common body types.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req, token)
	if err != nil {
		return nil, err
	}

	for _, wait := range c.cfg.Backoff {
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		if req.Body != nil && req.GetBody == nil {
			c.logger.Warn("peer returned 401 but request body cannot be replayed")
			return resp, nil
		}
		drainAndClose(resp.Body)
		if err := c.Invalidate(ctx); err != nil {
			c.logger.Warn("dropping cached token failed", "error", err.Error())
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		token, err = c.Token(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(req, token)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		r.Body = body
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(r)
}

func (c *Client) exchange(ctx context.Context) (string, error) {
	endpoint := strings.TrimRight(c.cfg.IssuerURL, "/") + tokenPath
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.cfg.Backoff); attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.cfg.Backoff[attempt-1]); err != nil {
				return "", err
			}
		}
		token, retryable, err := c.tryExchange(ctx, endpoint, form)
		if err == nil {
			c.logger.Info("exchanged service token")
			return token, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: token exchange: %v", auth.ErrUpstreamUnavailable, lastErr)
}

func (c *Client) tryExchange(ctx context.Context, endpoint string, form url.Values) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", false, fmt.Errorf("decoding token response: %w", err)
		}
		if out.AccessToken == "" {
			return "", false, errors.New("token response missing access_token")
		}
		return out.AccessToken, false, nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("%w: issuer rejected exchange with status %d: %s",
			auth.ErrInvalidCredentials, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", true, fmt.Errorf("issuer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
