package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenProvider supplies bearer tokens for the accounting API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a fixed token that cannot be refreshed.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Refresh returns the same token; the retry will surface ErrUnauthorized.
func (t StaticToken) Refresh(context.Context) (string, error) {
	return string(t), nil
}

// ClientCredentials obtains tokens with the OAuth2 client-credentials grant and
// caches them until shortly before expiry.
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
	group   singleflight.Group
}

// NewClientCredentials constructs a token provider against tokenURL.
func NewClientCredentials(tokenURL, clientID, clientSecret string, timeout time.Duration) *ClientCredentials {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ClientCredentials{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Token returns the cached token or requests a new one.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expires := c.token, c.expires
	c.mu.Unlock()
	if token != "" && c.now().Before(expires) {
		return token, nil
	}
	return c.Refresh(ctx)
}

// Refresh forces a new token. Concurrent callers share one request.
func (c *ClientCredentials) Refresh(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.request(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *ClientCredentials) request(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: token request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrUpstream, resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("ledger: decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUpstream)
	}
	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	c.mu.Lock()
	c.token = payload.AccessToken
	// refresh a little early so in-flight report runs keep a valid token
	c.expires = c.now().Add(lifetime - lifetime/10)
	c.mu.Unlock()
	return payload.AccessToken, nil
}
