// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// causes of a session ending, see Session.Err

	ErrExpired     = errors.New("session expired")
	ErrInvalidated = errors.New("session invalidated by another participant")
	ErrLoggedOut   = errors.New("session logged out")
	ErrClosed      = errors.New("session closed")
)
