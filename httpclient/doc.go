// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package httpclient provides an http.RoundTripper running request
// interceptors and response monitors, and a Client built on it which attaches
// bearer tokens acquired from a token.Provider, renews a session.Session on
// successful responses and cancels its requests when the session ends.
package httpclient
