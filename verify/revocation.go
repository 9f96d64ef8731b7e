package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shopmesh/auth"
)

// RevocationChecker answers whether the session behind a token id has
// been revoked. Implementations must return an error, not a guess, when
// they cannot answer; the verifier's fail policy decides what happens
// then.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// redisRevocations reads the revocation keys the issuer publishes to the
// shared cache. Key absence means not revoked.
type redisRevocations struct {
	client redis.UniversalClient
}

func (r redisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, auth.RevokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("revocation key lookup: %w", err)
	}
	return n > 0, nil
}

// issuerRevocations asks the issuer directly whether the session is still
// active. Slower than the cache path but needs no shared infrastructure.
type issuerRevocations struct {
	baseURL        string
	client         *http.Client
	allowUntracked bool
}

func (r issuerRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	endpoint := strings.TrimRight(r.baseURL, "/") + "/auth/v1/sessions/" + url.PathEscape(jti) + "/active"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("building session lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("requesting session state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("session lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Active bool `json:"active"`
		Found  bool `json:"found"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decoding session state: %w", err)
	}
	if !out.Found {
		// No session row. Conservative default: treat as revoked unless
		// the deployment explicitly tolerates untracked tokens.
		return !r.allowUntracked, nil
	}
	return !out.Active, nil
}
