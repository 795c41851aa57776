// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// DefaultLeeway is the default refresh window of a Cache.
const DefaultLeeway = time.Minute

// Cache is a Provider which caches tokens per resource and acquires new ones
// from its underlying Provider when they are missing, about to expire or
// were invalidated. It is safe for concurrent use.
type Cache struct {
	provider Provider
	leeway   time.Duration
	now      func() time.Time
	logger   hclog.Logger

	mu     sync.RWMutex
	tokens map[string]*Token

	// acquisitions are shared per resource
	group singleflight.Group
}

var (
	_ Provider    = (*Cache)(nil)
	_ Invalidator = (*Cache)(nil)
)

// NewCache creates a new Cache for the provider.
// Supported options:
//
//	WithLeeway
//	WithLogger
//	WithNow
func NewCache(p Provider, opt ...Option) (*Cache, error) {
	const op = "token.NewCache"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	opts := getCacheOpts(opt...)
	if opts.withLeeway < 0 {
		return nil, fmt.Errorf("%s: leeway %s is negative: %w", op, opts.withLeeway, ErrInvalidParameter)
	}
	return &Cache{
		provider: p,
		leeway:   opts.withLeeway,
		now:      opts.withNow,
		logger:   opts.withLogger,
		tokens:   map[string]*Token{},
	}, nil
}

// AcquireToken returns a cached token for the resource, or acquires a new
// one. Only one acquisition per resource at a time is made from the
// underlying provider; callers waiting for it return early when their ctx is
// done.
func (c *Cache) AcquireToken(ctx context.Context, resource string) (*Token, error) {
	const op = "Cache.AcquireToken"
	if ctx == nil {
		ctx = context.Background()
	}
	if t := c.cached(resource); t != nil {
		return t, nil
	}

	// shared by every waiter, so not cancelled with this caller
	acquireCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(resource, func() (interface{}, error) {
		// another caller may have acquired while we waited
		if t := c.cached(resource); t != nil {
			return t, nil
		}
		t, err := c.provider.AcquireToken(acquireCtx, resource)
		if err != nil {
			return nil, err
		}
		if !t.Valid(WithNow(c.now)) {
			return nil, fmt.Errorf("provider returned an unusable token for %q: %w", resource, ErrInvalidToken)
		}
		c.mu.Lock()
		c.tokens[resource] = t
		c.mu.Unlock()
		c.logger.Debug("acquired token", "resource", resource, "expiry", t.Expiry)
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, context.Cause(ctx))
	case r := <-ch:
		if r.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, r.Err)
		}
		return r.Val.(*Token), nil
	}
}

func (c *Cache) cached(resource string) *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t := c.tokens[resource]; c.usable(t) {
		return t
	}
	return nil
}

// Invalidate drops the cached token for the resource.
func (c *Cache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tokens[resource]; ok {
		delete(c.tokens, resource)
		c.logger.Debug("invalidated token", "resource", resource)
	}
}

func (c *Cache) usable(t *Token) bool {
	if !t.Valid(WithNow(c.now)) {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return t.Expiry.Sub(c.now()) > c.leeway
}

type cacheOptions struct {
	withLeeway time.Duration
	withLogger hclog.Logger
	withNow    func() time.Time
}

func cacheDefaults() cacheOptions {
	return cacheOptions{
		withLeeway: DefaultLeeway,
		withLogger: hclog.NewNullLogger(),
		withNow:    time.Now,
	}
}

func getCacheOpts(opt ...Option) cacheOptions {
	opts := cacheDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
