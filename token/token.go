// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/capsession/jwt"
	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// DefaultExpirySkew defines the default time skew when checking a Token's
// expiration.
const DefaultExpirySkew = 10 * time.Second

// Token is a bearer token acquired for a resource.
type Token struct {
	AccessToken AccessToken
	TokenType   string

	// Expiry is the zero time when the expiry is unknown.
	Expiry time.Time
}

// NewToken creates a Token from an oauth2.Token. When the provider did not
// report expires_in the expiry is read from the access token itself, if it
// is a JWT.
func NewToken(t *oauth2.Token) (*Token, error) {
	const op = "token.NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	tk := &Token{
		AccessToken: AccessToken(t.AccessToken),
		TokenType:   t.Type(),
		Expiry:      t.Expiry,
	}
	if tk.Expiry.IsZero() {
		if exp, err := jwt.ParseExpiry(t.AccessToken); err == nil {
			tk.Expiry = exp
		}
	}
	return tk, nil
}

// Expired returns true if the token has expired. Supports the WithExpirySkew
// and WithNow options. Tokens without a known expiry never expire.
func (t *Token) Expired(opt ...Option) bool {
	if t.Expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.Expiry.Round(0).Before(opts.withNow().Add(opts.withExpirySkew))
}

// Valid returns true if the token has an access token and has not expired.
func (t *Token) Valid(opt ...Option) bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired(opt...)
}

// AuthorizationHeader returns the value for an Authorization header.
func (t *Token) AuthorizationHeader() string {
	typ := t.TokenType
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + string(t.AccessToken)
}

type tokenOptions struct {
	withExpirySkew time.Duration
	withNow        func() time.Time
}

func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultExpirySkew,
		withNow:        time.Now,
	}
}

func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
