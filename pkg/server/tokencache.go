package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshLeeway renews a token slightly before its stated expiry so callers
// never receive one about to lapse mid-request.
const refreshLeeway = 30 * time.Second

// Token is a short-lived credential handed out to API callers.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefreshFunc mints a fresh token.
type RefreshFunc func(ctx context.Context) (Token, error)

// TokenCache hands out a cached token until it nears expiry, then refreshes
// it exactly once regardless of how many callers raced on the stale value.
type TokenCache struct {
	mu      sync.Mutex
	refresh RefreshFunc
	now     func() time.Time
	current Token
}

// NewTokenCache creates a cache over the given refresh function.
func NewTokenCache(refresh RefreshFunc) *TokenCache {
	return &TokenCache{
		refresh: refresh,
		now:     time.Now,
	}
}

// SetClock overrides the cache's time source. Intended for tests.
func (c *TokenCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached token, refreshing it first when it is missing or
// within the renewal leeway of expiry.
func (c *TokenCache) Get(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Value != "" && c.now().Add(refreshLeeway).Before(c.current.ExpiresAt) {
		return c.current, nil
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	c.current = fresh
	return c.current, nil
}
