// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/capsession/store"
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

// WithTimeout provides an optional idle timeout for: NewConfig
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withTimeout = d
		}
	}
}

// WithDebug enables debug logging for: NewConfig
func WithDebug() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withDebug = true
		}
	}
}

// WithStore provides where the session record is shared for: New. Without
// it the session uses a private store.MemoryStore.
func WithStore(s store.Store) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			v.withStore = s
		}
	}
}

// WithLogger provides an optional logger for: New
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			v.withLogger = l
		}
	}
}

// WithLogoutFunc registers a func to call when the session ends for any
// reason other than Close. May be given more than once.
func WithLogoutFunc(fn LogoutFunc) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			if fn != nil {
				v.withLogoutFuncs = append(v.withLogoutFuncs, fn)
			}
		}
	}
}

// WithTokenBound makes the session's deadline never exceed the expiry of the
// token given to WithTokenExpiry, for: New
func WithTokenBound() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			v.withTokenBound = true
		}
	}
}

// WithPersistInterval limits how often the record is saved to the store, for:
// New. Writes skipped in between are coalesced into one trailing write.
func WithPersistInterval(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			v.withPersistInterval = d
		}
	}
}

// WithNow provides an optional func for determining the current time, for:
// New
func WithNow(fn func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *sessionOptions:
			if fn != nil {
				v.withNow = fn
			}
		}
	}
}

// WithTokenExpiry provides the expiry of the token used by the activity, for:
// SetExpiry, Touch
func WithTokenExpiry(t time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *expiryOptions:
			v.withTokenExpiry = t
		}
	}
}

type sessionOptions struct {
	withStore           store.Store
	withLogger          hclog.Logger
	withLogoutFuncs     []LogoutFunc
	withTokenBound      bool
	withPersistInterval time.Duration
	withNow             func() time.Time
}

func sessionDefaults() sessionOptions {
	return sessionOptions{
		withNow: time.Now,
	}
}

func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type expiryOptions struct {
	withTokenExpiry time.Time
}

func getExpiryOpts(opt ...Option) expiryOptions {
	opts := expiryOptions{}
	ApplyOpts(&opts, opt...)
	return opts
}
