package auth

import (
	"sync"
	"time"
)

// CachedToken is an access token paired with the instance it is valid for.
type CachedToken struct {
	AccessToken string
	InstanceURL string
	ExpiresAt   time.Time
}

// Valid reports whether the token may still be served at now.
func (t CachedToken) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// TokenCache holds at most one token. The slot is always replaced as a whole.
type TokenCache struct {
	mu    sync.RWMutex
	token *CachedToken
	now   func() time.Time
}

// NewTokenCache creates an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns the cached token if it has not expired. An expired token is
// dropped from the slot.
func (c *TokenCache) Get() (CachedToken, bool) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	if tok == nil {
		return CachedToken{}, false
	}
	if tok.Valid(c.now()) {
		return *tok, true
	}

	c.mu.Lock()
	if c.token == tok {
		c.token = nil
	}
	c.mu.Unlock()
	return CachedToken{}, false
}

// Set replaces the cached token.
func (c *TokenCache) Set(tok CachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &tok
}

// Clear empties the slot. It is safe to call at any time.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}
