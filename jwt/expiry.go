// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package jwt inspects the claims of bearer tokens issued as JWTs. Signatures
// are not verified: the results are only used to schedule client-side expiry,
// never to make authorization decisions.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed jwt")
	ErrMissingExpiry  = errors.New("jwt has no exp claim")
)

// ParseExpiry returns the "exp" claim of the raw JWT.
func ParseExpiry(raw string) (time.Time, error) {
	const op = "jwt.ParseExpiry"
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, fmt.Errorf("%s: expected 3 parts: %w", op, ErrMalformedToken)
	}
	claims := gojwt.RegisteredClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w: %s", op, ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrMissingExpiry)
	}
	return claims.ExpiresAt.Time, nil
}
