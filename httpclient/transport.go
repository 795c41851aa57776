// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/go-hclog"
)

// RequestInterceptor inspects or rewrites a request before it is sent. It
// must not modify req; it returns req itself or a clone. A returned error
// rejects the request without sending it.
type RequestInterceptor func(req *http.Request) (*http.Request, error)

// ResponseMonitor observes a response after it was received. req is the
// request as sent, after every RequestInterceptor ran.
type ResponseMonitor func(req *http.Request, resp *http.Response)

// Transport is an http.RoundTripper running a pipeline of interceptors and
// monitors around Base. When Session is set, requests fail with
// ErrSessionEnded once it ended, and requests in flight, including the
// reading of their response bodies, are cancelled when it ends.
type Transport struct {
	// Base sends the requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Session is optional.
	Session *session.Session

	// Interceptors run in order before a request is sent.
	Interceptors []RequestInterceptor

	// Monitors run in order after a response is received.
	Monitors []ResponseMonitor

	// Logger is optional.
	Logger hclog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "httpclient.(Transport).RoundTrip"
	logger := t.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if t.Session != nil {
		if cause := t.Session.Err(); cause != nil {
			closeBody(req)
			return nil, fmt.Errorf("%s: %w: %w", op, ErrSessionEnded, cause)
		}
	}

	release := func() {}
	ctx := req.Context()
	if t.Session != nil {
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)
		sessionCtx := t.Session.Context()
		stop := context.AfterFunc(sessionCtx, func() {
			cancel(fmt.Errorf("%w: %w", ErrSessionEnded, context.Cause(sessionCtx)))
		})
		release = func() {
			stop()
			cancel(context.Canceled)
		}
		req = req.WithContext(ctx)
	}

	for _, ic := range t.Interceptors {
		if ic == nil {
			continue
		}
		next, err := ic(req)
		if err != nil {
			release()
			closeBody(req)
			logger.Debug("request rejected", "method", req.Method, "url", req.URL.Redacted(), "error", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if next != nil {
			req = next
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		cause := context.Cause(ctx)
		release()
		if errors.Is(cause, ErrSessionEnded) {
			return nil, fmt.Errorf("%s: %w", op, cause)
		}
		return nil, err
	}
	logger.Trace("response", "method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode)

	for _, m := range t.Monitors {
		if m != nil {
			m(req, resp)
		}
	}
	if t.Session != nil {
		resp.Body = &releaseOnClose{ReadCloser: resp.Body, ctx: ctx, release: release}
	}
	return resp, nil
}

// closeBody closes the request body, which RoundTrip must do even on errors.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// releaseOnClose keeps the request's context alive until the response body is
// closed.
type releaseOnClose struct {
	io.ReadCloser
	ctx     context.Context
	release func()
	once    sync.Once
}

// Read reports ErrSessionEnded when the session ended during the read.
func (b *releaseOnClose) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		if cause := context.Cause(b.ctx); errors.Is(cause, ErrSessionEnded) {
			return n, cause
		}
	}
	return n, err
}

func (b *releaseOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
