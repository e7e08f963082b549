package kroger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// refreshMargin is the remaining lifetime below which a token is renewed
	refreshMargin = 60 * time.Second
	// refreshTimeout bounds one shared refresh independently of any caller's deadline
	refreshTimeout = 30 * time.Second
)

// tokenFetcher obtains a new bearer token and its lifetime
type tokenFetcher func(ctx context.Context) (string, time.Duration, error)

// tokenCell caches one bearer token. Concurrent callers that find it near expiry
// share a single refresh.
type tokenCell struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group   singleflight.Group
	fetch   tokenFetcher
	timeout time.Duration
	now     func() time.Time
}

func newTokenCell(fetch tokenFetcher) *tokenCell {
	return &tokenCell{fetch: fetch, timeout: refreshTimeout, now: time.Now}
}

// Get returns a token valid for at least refreshMargin. The shared refresh is detached
// from ctx; a caller whose ctx ends stops waiting without failing the other waiters.
func (c *tokenCell) Get(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		token, ttl, err := c.fetch(refreshCtx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *tokenCell) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.expiresAt.Sub(c.now()) > refreshMargin {
		return c.token, true
	}
	return "", false
}
