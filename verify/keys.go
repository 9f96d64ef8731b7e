package verify

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopmesh/auth"
)

// keyProvider resolves the verification key for a parsed-but-unverified
// token header.
type keyProvider interface {
	keyFor(ctx context.Context, token *jwt.Token) (any, error)
	methods() []string
}

type hmacKeys struct {
	secret []byte
}

func (k hmacKeys) keyFor(context.Context, *jwt.Token) (any, error) {
	return k.secret, nil
}

func (k hmacKeys) methods() []string {
	return []string{jwt.SigningMethodHS256.Alg()}
}

// jwksKeys serves RSA public keys fetched from the issuer's JWKS
// endpoint, cached by kid. An unknown kid triggers one refetch so key
// rotation propagates without restarts; refetches are rate limited so a
// stream of bogus kids cannot hammer the issuer.
type jwksKeys struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu         sync.Mutex
	keys       map[string]*rsa.PublicKey
	lastFetch  time.Time
	minRefetch time.Duration
}

func newJWKSKeys(url string, client *http.Client, logger *slog.Logger) *jwksKeys {
	return &jwksKeys{
		url:        url,
		client:     client,
		logger:     logger,
		minRefetch: time.Minute,
	}
}

func (k *jwksKeys) methods() []string {
	return []string{jwt.SigningMethodRS256.Alg()}
}

func (k *jwksKeys) keyFor(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: token has no kid header", auth.ErrInvalidSignature)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	if len(k.keys) == 0 || time.Since(k.lastFetch) >= k.minRefetch {
		fetched, err := fetchJWKS(ctx, k.client, k.url)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching jwks: %v", auth.ErrUpstreamUnavailable, err)
		}
		k.keys = fetched
		k.lastFetch = time.Now()
		k.logger.Info("refreshed jwks key set", "keys", len(fetched))
		if key, ok := k.keys[kid]; ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown kid %q", auth.ErrInvalidSignature, kid)
}

type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func fetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("jwks endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding jwks document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for i, entry := range doc.Keys {
		if !strings.EqualFold(entry.Kty, "RSA") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(entry.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus for key %d: %w", i, err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(entry.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent for key %d: %w", i, err)
		}
		e := new(big.Int).SetBytes(eBytes)
		if !e.IsInt64() || e.Int64() <= 1 {
			return nil, fmt.Errorf("invalid exponent for key %d", i)
		}
		kid := entry.Kid
		if kid == "" {
			kid = fmt.Sprintf("key-%d", i)
		}
		keys[kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(e.Int64()),
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks document contains no usable RSA keys")
	}
	return keys, nil
}
