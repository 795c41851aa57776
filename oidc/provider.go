// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	sdkhttp "github.com/hashicorp/capsession/sdk/http"
	"github.com/hashicorp/capsession/token"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider acquires access tokens for API resources from an OIDC provider
// using the client credentials grant. It implements token.Provider.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client
	logger   hclog.Logger

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

var _ token.Provider = (*Provider)(nil)

// NewProvider creates and initializes a Provider. Initializing the provider
// includes making an http request to the provider's issuer for discovery.
// Supported options:
//
//	WithLogger
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              opts.withLogger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(sdkhttp.ClientContext(p.backgroundCtx, client), c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider
	p.logger.Debug("discovered provider", "issuer", c.Issuer, "token_url", provider.Endpoint().TokenURL)

	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Endpoint returns the discovered endpoints of the provider.
func (p *Provider) Endpoint() oauth2.Endpoint {
	return p.provider.Endpoint()
}

// AcquireToken requests an access token for the resource with the client
// credentials grant. An empty resource requests a token without the resource
// parameter. Errors wrap token.ErrAcquireFailed.
func (p *Provider) AcquireToken(ctx context.Context, resource string) (*token.Token, error) {
	const op = "Provider.AcquireToken"
	if p.backgroundCtx.Err() != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, token.ErrAcquireFailed, ErrProviderDone)
	}
	cc := p.clientCredentials(resource)
	t, err := cc.Token(sdkhttp.ClientContext(ctx, p.client))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, token.ErrAcquireFailed, err)
	}
	tk, err := token.NewToken(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, token.ErrAcquireFailed, err)
	}
	p.logger.Debug("acquired token", "resource", resource, "expiry", tk.Expiry)
	return tk, nil
}

func (p *Provider) clientCredentials(resource string) *clientcredentials.Config {
	cc := &clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		TokenURL:     p.provider.Endpoint().TokenURL,
		Scopes:       p.config.Scopes,
		AuthStyle:    p.provider.Endpoint().AuthStyle,
	}
	if resource != "" {
		cc.EndpointParams = url.Values{p.config.ResourceParam: {resource}}
	}
	return cc
}

type providerOptions struct {
	withLogger hclog.Logger
}

func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
