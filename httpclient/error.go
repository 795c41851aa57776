// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrTokenUnavailable rejects a request for which no valid token could be
	// acquired. The request is not sent.
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrSessionEnded fails requests once the session ended, and cancels the
	// ones in flight when it ends. It wraps the session's cause.
	ErrSessionEnded = errors.New("session ended")
)
