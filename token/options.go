// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import (
	"time"

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

// WithExpirySkew provides an optional expiry skew duration for: Token.Expired,
// Token.Valid
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenOptions:
			v.withExpirySkew = d
		}
	}
}

// WithLeeway provides an optional refresh leeway for a Cache. Cached tokens
// that expire within the leeway are acquired again.
func WithLeeway(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *cacheOptions:
			v.withLeeway = d
		}
	}
}

// WithLogger provides an optional logger for: Cache
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *cacheOptions:
			if l != nil {
				v.withLogger = l
			}
		}
	}
}

// WithNow provides an optional func for determining the current time.
func WithNow(fn func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenOptions:
			if fn != nil {
				v.withNow = fn
			}
		case *cacheOptions:
			if fn != nil {
				v.withNow = fn
			}
		}
	}
}
