// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for acquiring access tokens for API resources from an OIDC
provider.

Primary types provided by the package

* Config: provides the configuration of a confidential client (for example:
client Id/Secret, issuer, additional scopes requested, the CA of the provider
and the name of the resource parameter)

* Provider: discovers the provider's endpoints and acquires access tokens with
the client credentials grant. It implements token.Provider, so it can be
wrapped by a token.Cache and used by the httpclient package.

* TestProvider: a local TLS provider for tests, issuing signed JWT access
tokens.

Example

	pc, err := oidc.NewConfig(issuer, clientID, clientSecret)
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	tk, err := p.AcquireToken(ctx, "https://api.example.com")
*/
package oidc
