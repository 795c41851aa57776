// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/capsession/token"
	"github.com/hashicorp/go-hclog"
)

type tokenCtxKey struct{}

// TokenFromContext returns the token BearerToken attached to a request, from
// the request's context.
func TokenFromContext(ctx context.Context) (*token.Token, bool) {
	tk, ok := ctx.Value(tokenCtxKey{}).(*token.Token)
	return tk, ok
}

// BearerToken returns a RequestInterceptor which acquires a token for the
// resource from p and sets it as the request's Authorization header. When no
// token can be acquired, or the acquired token is not valid, the request is
// rejected with ErrTokenUnavailable. The token is available to monitors via
// TokenFromContext.
func BearerToken(p token.Provider, resource string) RequestInterceptor {
	return func(req *http.Request) (*http.Request, error) {
		const op = "httpclient.BearerToken"
		if p == nil {
			return nil, fmt.Errorf("%s: token provider is nil: %w: %w", op, ErrTokenUnavailable, ErrNilParameter)
		}
		tk, err := p.AcquireToken(req.Context(), resource)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrTokenUnavailable, err)
		}
		if !tk.Valid() {
			return nil, fmt.Errorf("%s: token for %q is missing or expired: %w", op, resource, ErrTokenUnavailable)
		}
		out := req.Clone(context.WithValue(req.Context(), tokenCtxKey{}, tk))
		out.Header.Set("Authorization", tk.AuthorizationHeader())
		return out, nil
	}
}

// RenewSession returns a ResponseMonitor which records activity on s after
// every response with a status below 400. The expiry of the request's token,
// if any, is passed along for sessions bound to their tokens.
// Supported options:
//
//	WithLogger
func RenewSession(s *session.Session, opt ...Option) ResponseMonitor {
	opts := getMonitorOpts(opt...)
	return func(req *http.Request, resp *http.Response) {
		if s == nil || resp.StatusCode >= http.StatusBadRequest {
			return
		}
		var expiryOpts []session.Option
		if tk, ok := TokenFromContext(req.Context()); ok {
			expiryOpts = append(expiryOpts, session.WithTokenExpiry(tk.Expiry))
		}
		if err := s.Touch(req.Context(), expiryOpts...); err != nil {
			opts.withLogger.Warn("unable to renew session", "error", err)
		}
	}
}

// InvalidateOnUnauthorized returns a ResponseMonitor which drops the cached
// token of the resource when the server rejects it with a 401, so the next
// request acquires a fresh one.
func InvalidateOnUnauthorized(inv token.Invalidator, resource string) ResponseMonitor {
	return func(_ *http.Request, resp *http.Response) {
		if inv == nil || resp.StatusCode != http.StatusUnauthorized {
			return
		}
		inv.Invalidate(resource)
	}
}

// LogoutOnUnauthorized returns a ResponseMonitor which logs out of s when the
// server replies with a 401. Logging out cancels the request, so the body of
// the 401 response cannot be read.
// Supported options:
//
//	WithLogger
func LogoutOnUnauthorized(s *session.Session, opt ...Option) ResponseMonitor {
	opts := getMonitorOpts(opt...)
	return func(req *http.Request, resp *http.Response) {
		if s == nil || resp.StatusCode != http.StatusUnauthorized {
			return
		}
		opts.withLogger.Info("logging out after unauthorized response", "url", req.URL.Redacted())
		if err := s.Logout(req.Context()); err != nil {
			opts.withLogger.Warn("unable to log out", "error", err)
		}
	}
}

type monitorOptions struct {
	withLogger hclog.Logger
}

func monitorDefaults() monitorOptions {
	return monitorOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getMonitorOpts(opt ...Option) monitorOptions {
	opts := monitorDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
