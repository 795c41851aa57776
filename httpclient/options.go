// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/capsession/token"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
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

// WithLogger provides an optional logger for: NewClient, RenewSession,
// LogoutOnUnauthorized
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *clientOptions:
			v.withLogger = l
		case *monitorOptions:
			v.withLogger = l
		}
	}
}

// WithTokenProvider provides where the client acquires bearer tokens for the
// resource, for: NewClient. The provider is wrapped in a token.Cache.
func WithTokenProvider(p token.Provider, resource string) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withTokenProvider = p
			v.withResource = resource
		}
	}
}

// WithSession provides the session renewed by successful responses and
// ending the client's requests, for: NewClient
func WithSession(s *session.Session) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withSession = s
		}
	}
}

// WithCACert provides an optional CA cert PEM trusted for the API server,
// for: NewClient
func WithCACert(pem string) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withCACert = pem
		}
	}
}

// WithTimeout provides an optional timeout of every request, for: NewClient
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withTimeout = d
		}
	}
}

// WithBaseTransport provides an optional transport sending the requests, for:
// NewClient. WithCACert is ignored when it is given.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withBaseTransport = rt
		}
	}
}

// WithRequestInterceptor adds an interceptor running after the bearer token
// was attached, for: NewClient. May be given more than once.
func WithRequestInterceptor(ic RequestInterceptor) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && ic != nil {
			v.withInterceptors = append(v.withInterceptors, ic)
		}
	}
}

// WithResponseMonitor adds a monitor running after the built in ones, for:
// NewClient. May be given more than once.
func WithResponseMonitor(m ResponseMonitor) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && m != nil {
			v.withMonitors = append(v.withMonitors, m)
		}
	}
}

// WithLogoutOnUnauthorized logs out of the session when the API server
// replies with a 401, for: NewClient
func WithLogoutOnUnauthorized() Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok {
			v.withLogoutOnUnauthorized = true
		}
	}
}
