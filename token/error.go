// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package token

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrAcquireFailed    = errors.New("token acquisition failed")
	ErrInvalidToken     = errors.New("invalid token")
)
