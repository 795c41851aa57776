// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Provider acquires bearer tokens. It is the only capability the request
// pipeline requires of an identity library.
type Provider interface {
	// AcquireToken returns a token for the resource (the API's application
	// id or audience). An empty resource requests the provider's default.
	AcquireToken(ctx context.Context, resource string) (*Token, error)
}

// Invalidator is implemented by providers which cache tokens and can be told
// that a token was rejected by the resource.
type Invalidator interface {
	Invalidate(resource string)
}

// ProviderFunc is an adapter to allow the use of ordinary functions as a
// Provider.
type ProviderFunc func(ctx context.Context, resource string) (*Token, error)

// AcquireToken calls fn(ctx, resource)
func (fn ProviderFunc) AcquireToken(ctx context.Context, resource string) (*Token, error) {
	return fn(ctx, resource)
}

// ensure that ProviderFunc implements the Provider interface
var _ Provider = ProviderFunc(nil)

// FromTokenSource wraps an oauth2.TokenSource as a Provider. The resource is
// ignored since a token source is already bound to one.
func FromTokenSource(ts oauth2.TokenSource) (Provider, error) {
	const op = "token.FromTokenSource"
	if ts == nil {
		return nil, fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	return ProviderFunc(func(_ context.Context, _ string) (*Token, error) {
		t, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrAcquireFailed, err)
		}
		return NewToken(t)
	}), nil
}
