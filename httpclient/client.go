// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkhttp "github.com/hashicorp/capsession/sdk/http"
	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/capsession/token"
	"github.com/hashicorp/go-hclog"
)

// DefaultTimeout bounds every request of a Client.
const DefaultTimeout = 30 * time.Second

// Client calls an API server with bearer tokens, keeping a session alive.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	session *session.Session
	tokens  *token.Cache
	logger  hclog.Logger
}

// NewClient creates a client for the API server at baseURL. Relative paths
// given to Get and NewRequest are resolved against it.
// Supported options:
//
//	WithTokenProvider
//	WithSession
//	WithCACert
//	WithTimeout
//	WithBaseTransport
//	WithLogger
//	WithRequestInterceptor
//	WithResponseMonitor
//	WithLogoutOnUnauthorized
func NewClient(baseURL string, opt ...Option) (*Client, error) {
	const op = "httpclient.NewClient"
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: base url %q is invalid (%s): %w", op, baseURL, err, ErrInvalidParameter)
	}
	if baseURL != "" && (u.Scheme == "" || u.Host == "") {
		return nil, fmt.Errorf("%s: base url %q is not absolute: %w", op, baseURL, ErrInvalidParameter)
	}
	opts := getClientOpts(opt...)
	if opts.withTimeout < 0 {
		return nil, fmt.Errorf("%s: timeout %s is negative: %w", op, opts.withTimeout, ErrInvalidParameter)
	}
	if opts.withLogoutOnUnauthorized && opts.withSession == nil {
		return nil, fmt.Errorf("%s: logout on unauthorized requires a session: %w", op, ErrInvalidParameter)
	}

	base := opts.withBaseTransport
	if base == nil {
		tr, err := sdkhttp.NewTransport(opts.withCACert)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create transport: %w", op, err)
		}
		base = tr
	}

	c := &Client{
		baseURL: u,
		session: opts.withSession,
		logger:  opts.withLogger,
	}
	tr := &Transport{
		Base:    base,
		Session: opts.withSession,
		Logger:  opts.withLogger,
	}
	if opts.withTokenProvider != nil {
		cache, ok := opts.withTokenProvider.(*token.Cache)
		if !ok {
			cache, err = token.NewCache(opts.withTokenProvider, token.WithLogger(opts.withLogger.Named("tokens")))
			if err != nil {
				return nil, fmt.Errorf("%s: unable to create token cache: %w", op, err)
			}
		}
		c.tokens = cache
		tr.Interceptors = append(tr.Interceptors, BearerToken(cache, opts.withResource))
		tr.Monitors = append(tr.Monitors, InvalidateOnUnauthorized(cache, opts.withResource))
	}
	tr.Interceptors = append(tr.Interceptors, opts.withInterceptors...)
	if opts.withSession != nil {
		tr.Monitors = append(tr.Monitors, RenewSession(opts.withSession, WithLogger(opts.withLogger)))
		if opts.withLogoutOnUnauthorized {
			tr.Monitors = append(tr.Monitors, LogoutOnUnauthorized(opts.withSession, WithLogger(opts.withLogger)))
		}
	}
	tr.Monitors = append(tr.Monitors, opts.withMonitors...)

	c.client = &http.Client{
		Transport: tr,
		Timeout:   opts.withTimeout,
	}
	return c, nil
}

// HTTPClient returns the underlying http client, which runs the client's
// pipeline for every request.
func (c *Client) HTTPClient() *http.Client { return c.client }

// Session returns the session of the client, or nil without WithSession.
func (c *Client) Session() *session.Session { return c.session }

// Tokens returns the token cache of the client, or nil without
// WithTokenProvider.
func (c *Client) Tokens() *token.Cache { return c.tokens }

// NewRequest creates a request for the path resolved against the client's
// base url.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	const op = "Client.NewRequest"
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%s: path %q is invalid (%s): %w", op, path, err, ErrInvalidParameter)
	}
	u := c.baseURL.ResolveReference(ref)
	if !u.IsAbs() {
		return nil, fmt.Errorf("%s: url %q is not absolute: %w", op, u, ErrInvalidParameter)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return req, nil
}

// Do sends the request through the client's pipeline.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	const op = "Client.Do"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "url", req.URL.Redacted(), "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// Get sends a GET request for the path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	const op = "Client.Get"
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

type clientOptions struct {
	withTokenProvider        token.Provider
	withResource             string
	withSession              *session.Session
	withCACert               string
	withTimeout              time.Duration
	withBaseTransport        http.RoundTripper
	withLogger               hclog.Logger
	withInterceptors         []RequestInterceptor
	withMonitors             []ResponseMonitor
	withLogoutOnUnauthorized bool
}

func clientDefaults() clientOptions {
	return clientOptions{
		withTimeout: DefaultTimeout,
		withLogger:  hclog.NewNullLogger(),
	}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
