// Package oauth2cache implements the OAuth2 client-credentials token
// cache (C7): one cached token per provider key, refreshed through a
// single-flight guard so concurrent callers sharing a cold cache issue
// exactly one request to the token endpoint.
package oauth2cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// earlyExpiryWindow matches §4.7's "now < expires_at - 60" validity check.
const earlyExpiryWindow = 60 * time.Second

// Request describes the client-credentials exchange for one provider.
type Request struct {
	ProviderKey  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	ExtraParams  map[string]string
}

// Cache holds one cached token per provider key.
type Cache struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token

	group singleflight.Group
}

// New creates an empty token cache.
func New() *Cache {
	return &Cache{tokens: make(map[string]*oauth2.Token)}
}

// GetToken returns a valid access token for req.ProviderKey, fetching a
// fresh one through the client-credentials grant if the cached token is
// missing or within earlyExpiryWindow of expiring. Concurrent calls for
// the same provider key collapse into a single token-endpoint request
// (step 1 of §4.7: "acquire the per-key lock").
func (c *Cache) GetToken(ctx context.Context, req Request) (string, error) {
	if tok := c.cached(req.ProviderKey); tok != "" {
		return tok, nil
	}

	v, err, _ := c.group.Do(req.ProviderKey, func() (any, error) {
		// Re-check: another caller may have refreshed while we waited to
		// enter Do for this key.
		if tok := c.cached(req.ProviderKey); tok != "" {
			return tok, nil
		}

		cfg := &clientcredentials.Config{
			ClientID:       req.ClientID,
			ClientSecret:   req.ClientSecret,
			TokenURL:       req.TokenURL,
			Scopes:         scopeList(req.Scope),
			EndpointParams: urlValuesFrom(req.ExtraParams),
		}

		tok, err := cfg.Token(ctx)
		if err != nil {
			// Step 5: non-2xx or transport error is a fatal auth error for
			// this provider; never cached.
			return nil, fmt.Errorf("oauth2cache: token request for %s: %w", req.ProviderKey, err)
		}

		c.mu.Lock()
		c.tokens[req.ProviderKey] = tok
		c.mu.Unlock()

		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate removes the cached token for providerKey; the next GetToken
// call refreshes it.
func (c *Cache) Invalidate(providerKey string) {
	c.mu.Lock()
	delete(c.tokens, providerKey)
	c.mu.Unlock()
}

func (c *Cache) cached(providerKey string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, ok := c.tokens[providerKey]
	if !ok {
		return ""
	}
	if time.Now().Before(tok.Expiry.Add(-earlyExpiryWindow)) {
		return tok.AccessToken
	}
	return ""
}

func scopeList(scope string) []string {
	if scope == "" {
		return nil
	}
	return []string{scope}
}

func urlValuesFrom(m map[string]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = []string{v}
	}
	return out
}
