package svctoken

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopmesh/auth"
)

const (
	testClientID     = "checkout-service"
	testClientSecret = "checkout-secret"
)

var fastBackoff = []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingCache struct {
	TokenCache
	deletes atomic.Int32
}

func (c *countingCache) Delete(ctx context.Context, key string) error {
	c.deletes.Add(1)
	return c.TokenCache.Delete(ctx, key)
}

func issuedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testClientID,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("issuer-signing-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return raw
}

// testIssuer fakes the issuer's client-credentials endpoint.
func testIssuer(t *testing.T, exchanges *atomic.Int32, expFn func() time.Time) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostFormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
			return
		}
		if r.PostFormValue("client_id") != testClientID || r.PostFormValue("client_secret") != testClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": issuedToken(t, expFn()),
			"token_type":   "bearer",
			"expires_in":   600,
		})
	}))
}

func TestNewRequiresFullCredentials(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing issuer url", Config{ClientID: testClientID, ClientSecret: testClientSecret}},
		{"missing client id", Config{IssuerURL: "http://authd", ClientSecret: testClientSecret}},
		{"missing client secret", Config{IssuerURL: "http://authd", ClientID: testClientID}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.cfg); err == nil {
				t.Fatalf("expected configuration error")
			}
		})
	}
}

func TestTokenCachesUntilExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	var exchanges atomic.Int32
	issuer := testIssuer(t, &exchanges, func() time.Time { return clock.Now().Add(10 * time.Minute) })
	defer issuer.Close()

	cache := NewMemoryCache()
	cache.nowFn = clock.Now
	client, err := New(
		Config{IssuerURL: issuer.URL, ClientID: testClientID, ClientSecret: testClientSecret},
		WithCache(cache),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	client.nowFn = clock.Now

	ctx := context.Background()
	first, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("first Token call: %v", err)
	}
	second, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("second Token call: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached token string, got a different one")
	}
	if got := exchanges.Load(); got != 1 {
		t.Fatalf("expected exactly one exchange while cached, got %d", got)
	}

	// Past the token's lifetime the cache entry is gone and exactly one
	// fresh exchange happens.
	clock.Advance(11 * time.Minute)
	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("expected one fresh exchange after expiry, got %d total", got)
	}
}

func TestTokenWithinSafetyMarginIsNotCached(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Now()}
	var exchanges atomic.Int32
	issuer := testIssuer(t, &exchanges, func() time.Time { return clock.Now().Add(20 * time.Second) })
	defer issuer.Close()

	cache := NewMemoryCache()
	cache.nowFn = clock.Now
	client, err := New(
		Config{IssuerURL: issuer.URL, ClientID: testClientID, ClientSecret: testClientSecret},
		WithCache(cache),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	client.nowFn = clock.Now

	ctx := context.Background()
	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("first Token call: %v", err)
	}
	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("second Token call: %v", err)
	}
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("tokens living shorter than the safety margin must not be cached, got %d exchanges", got)
	}
}

func TestDoRetriesOnceOnUnauthorized(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int32
	issuer := testIssuer(t, &exchanges, func() time.Time { return time.Now().Add(10 * time.Minute) })
	defer issuer.Close()

	var peerCalls atomic.Int32
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("peer called without Authorization header")
		}
		if peerCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()

	cache := &countingCache{TokenCache: NewMemoryCache()}
	client, err := New(
		Config{IssuerURL: issuer.URL, ClientID: testClientID, ClientSecret: testClientSecret, Backoff: fastBackoff},
		WithCache(cache),
	)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, peer.URL+"/stock", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d", resp.StatusCode)
	}
	if got := peerCalls.Load(); got != 2 {
		t.Fatalf("expected exactly one replay, peer saw %d calls", got)
	}
	if got := cache.deletes.Load(); got != 1 {
		t.Fatalf("expected exactly one cache invalidation, got %d", got)
	}
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("expected exactly one fresh exchange after the 401, got %d total", got)
	}
}

func TestDoStopsAfterRetryBudget(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int32
	issuer := testIssuer(t, &exchanges, func() time.Time { return time.Now().Add(10 * time.Minute) })
	defer issuer.Close()

	var peerCalls atomic.Int32
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		peerCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer peer.Close()

	client, err := New(Config{
		IssuerURL:    issuer.URL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Backoff:      fastBackoff,
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, peer.URL+"/stock", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the final 401 to surface, got %d", resp.StatusCode)
	}
	if got := peerCalls.Load(); got != int32(1+len(fastBackoff)) {
		t.Fatalf("expected %d attempts, peer saw %d", 1+len(fastBackoff), got)
	}
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int32
	issuer := testIssuer(t, &exchanges, func() time.Time { return time.Now().Add(10 * time.Minute) })
	defer issuer.Close()

	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer peer.Close()

	client, err := New(Config{
		IssuerURL:    issuer.URL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Backoff:      []time.Duration{5 * time.Second},
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer.URL+"/stock", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	start := time.Now()
	_, err = client.Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancellation must cut the backoff short, took %v", elapsed)
	}
}

func TestTokenSurfacesInvalidCredentials(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer issuer.Close()

	client, err := New(Config{
		IssuerURL:    issuer.URL,
		ClientID:     testClientID,
		ClientSecret: "wrong-secret",
		Backoff:      fastBackoff,
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	if _, err := client.Token(context.Background()); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("credential rejections must not be retried, got %d requests", got)
	}
}

func TestTokenSurfacesIssuerOutage(t *testing.T) {
	t.Parallel()

	issuer := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	issuer.Close()

	client, err := New(Config{
		IssuerURL:    issuer.URL,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Backoff:      []time.Duration{time.Millisecond, 2 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	if _, err := client.Token(context.Background()); !errors.Is(err, auth.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}
