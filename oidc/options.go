// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithScopes provides an optional list of scopes for: NewConfig
func WithScopes(scopes []string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithProviderCA provides an optional CA cert for: NewConfig
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithResourceParam provides an optional name of the token request parameter
// carrying the requested resource, for: NewConfig
func WithResourceParam(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResourceParam = name
		}
	}
}

// WithLogger provides an optional logger for: NewProvider
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withLogger = l
		}
	}
}

// WithTestPort provides an optional port for: StartTestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// WithTestTokenTTL provides an optional lifetime of the access tokens issued
// by: StartTestProvider
func WithTestTokenTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withTokenTTL = ttl
		}
	}
}

// WithTestClientCreds provides the client credentials accepted by:
// StartTestProvider
func WithTestClientCreds(clientID, clientSecret string) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withClientID = clientID
			o.withClientSecret = clientSecret
		}
	}
}
