// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// capsession provides a collection of related packages which attach bearer
// tokens from an OIDC provider to API requests and keep a client side session
// alive while those requests succeed. The session is shared by every
// participant using the same session record: activity in one renews all of
// them, and a logout or an expiry in one ends all of them.
//
//   - session: the session expiry timer
//   - store: where participants share the session record (memory, file, sqlite)
//   - token: the token provider contract and a per resource token cache
//   - oidc: a token provider using the client credentials grant
//   - httpclient: the request pipeline of interceptors and monitors
//
// See examples/cli for a demonstration.
package capsession
