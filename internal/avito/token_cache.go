package avito

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/avireply/avireply/internal/models"
)

// TokenCache keeps one client credentials token source per marketplace account.
// A source hands out its token until it expires and then fetches a new one.
type TokenCache struct {
	tokenURL string
	client   *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func NewTokenCache(tokenURL string, client *http.Client) *TokenCache {
	return &TokenCache{
		tokenURL: tokenURL,
		client:   client,
		sources:  make(map[string]oauth2.TokenSource),
	}
}

// Token returns a bearer token for the credentials, fetching one only when
// there is no unexpired token cached.
func (c *TokenCache) Token(ctx context.Context, creds models.Credentials) (string, error) {
	key := cacheKey(creds)

	c.mu.Lock()
	src, ok := c.sources[key]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     c.tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		// The source keeps this context for every later refresh, so it must not be
		// bound to a single cycle.
		src = oauth2.ReuseTokenSource(nil, cfg.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, c.client)))
		c.sources[key] = src
	}
	c.mu.Unlock()

	tok, err := tokenWithContext(ctx, src)
	if err != nil {
		c.Invalidate(creds)
		return "", fmt.Errorf("%w: %v", models.ErrAuthFailure, err)
	}
	if tok.AccessToken == "" {
		c.Invalidate(creds)
		return "", fmt.Errorf("%w: empty access token", models.ErrAuthFailure)
	}

	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call requests a new one.
func (c *TokenCache) Invalidate(creds models.Credentials) {
	c.mu.Lock()
	delete(c.sources, cacheKey(creds))
	c.mu.Unlock()
}

func (c *TokenCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// tokenWithContext gives up waiting once ctx is done. The token request itself
// is bounded by the HTTP client timeout.
func tokenWithContext(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		done <- result{tok, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.tok, r.err
	}
}

func cacheKey(creds models.Credentials) string {
	sum := sha256.Sum256([]byte(creds.ClientSecret))
	return creds.ClientID + ":" + hex.EncodeToString(sum[:8])
}
