package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"sambaza/models"
)

// tokenSkew is how long before expiry a cached token is treated as stale.
// A slightly early refresh is cheap; serving an expired token is not.
const tokenSkew = 60 * time.Second

const defaultTokenTTL = time.Hour

// TokenSource caches one bearer token and refreshes it through fetch when
// absent or stale. Safe for concurrent use; the mutex keeps at most one
// refresh in flight.
type TokenSource struct {
	mu     sync.Mutex
	fetch  func() (string, time.Duration, error)
	now    func() time.Time
	token  string
	expiry time.Time
}

func NewTokenSource(fetch func() (string, time.Duration, error)) *TokenSource {
	return &TokenSource{fetch: fetch, now: time.Now}
}

func (ts *TokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Add(tokenSkew).Before(ts.expiry) {
		return ts.token, nil
	}

	token, ttl, err := ts.fetch()
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	ts.token = token
	ts.expiry = ts.now().Add(ttl)
	return ts.token, nil
}

// Invalidate drops the cached token so the next caller refreshes. Used when
// the provider rejects a token the cache still considered live.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiry = time.Time{}
}

// fetchClientCredentialsToken performs the client-credentials grant against
// an OAuth-style token endpoint that answers {access_token, expires_in}.
func fetchClientCredentialsToken(hc *http.Client, tokenURL, clientID, clientSecret string) (string, time.Duration, error) {
	req, err := http.NewRequest(http.MethodGet, tokenURL+"?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := hc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned %s: %s", resp.Status, string(raw))
	}

	var body struct {
		AccessToken string                `json:"access_token"`
		ExpiresIn   models.FlexibleString `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", 0, fmt.Errorf("token endpoint body unparseable: %w", err)
	}
	if body.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned no access_token: %s", string(raw))
	}

	ttl := defaultTokenTTL
	if secs, err := body.ExpiresIn.Decimal(); err == nil && secs.IsPositive() {
		ttl = time.Duration(secs.IntPart()) * time.Second
	}
	return body.AccessToken, ttl, nil
}
