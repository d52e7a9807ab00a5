package graph

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// tokenExpiryDelta treats a token as expired this long before its Expiry so
// a request never leaves with a token about to lapse.
const tokenExpiryDelta = 2 * time.Minute

const refreshKey = "service-token"

// tokenCache holds the current service token. Reads are lock-free; an expired
// or missing token triggers one refresh that all concurrent callers share.
type tokenCache struct {
	current   atomic.Pointer[oauth2.Token]
	group     singleflight.Group
	fetch     func(ctx context.Context) (*oauth2.Token, error)
	now       func() time.Time
	refreshes atomic.Int64
}

func newTokenCache(fetch func(ctx context.Context) (*oauth2.Token, error)) *tokenCache {
	return &tokenCache{fetch: fetch, now: time.Now}
}

func (c *tokenCache) usable(t *oauth2.Token) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	return t.Expiry.IsZero() || c.now().Add(tokenExpiryDelta).Before(t.Expiry)
}

// Token returns a usable token, refreshing at most once across concurrent
// callers. The refresh outlives ctx: a caller that gives up does not fail
// the others waiting on the same flight.
func (c *tokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	if t := c.current.Load(); c.usable(t) {
		return t, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if t := c.current.Load(); c.usable(t) {
			return t, nil
		}

		t, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.current.Store(t)
		c.refreshes.Add(1)

		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		tok, _ := res.Val.(*oauth2.Token) //nolint:errcheck // the flight only returns *oauth2.Token

		return tok, nil
	}
}

// Invalidate drops the cached token so the next Token call refreshes.
func (c *tokenCache) Invalidate() {
	c.current.Store(nil)
}

// Refreshes returns how many tokens have been fetched.
func (c *tokenCache) Refreshes() int64 {
	return c.refreshes.Load()
}
