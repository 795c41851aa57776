// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	sdkhttp "github.com/hashicorp/capsession/sdk/http"
)

// DefaultResourceParam is the token request parameter naming the API resource
// a token is requested for (RFC 8707).
const DefaultResourceParam = "resource"

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration of a confidential client requesting
// access tokens for API resources from an OIDC provider.
type Config struct {
	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// ClientID is the client's id
	ClientID string

	// ClientSecret is the client's secret
	ClientSecret ClientSecret

	// Scopes is an optional list of scopes to request with every token
	Scopes []string

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string

	// ResourceParam is the name of the token request parameter carrying the
	// resource passed to Provider.AcquireToken. Defaults to "resource";
	// some providers use "audience".
	ResourceParam string
}

// NewConfig composes a new config for a provider.
// Supported options:
//
//	WithScopes
//	WithProviderCA
//	WithResourceParam
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, opt ...Option) (*Config, error) {
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:        issuer,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Scopes:        opts.withScopes,
		ProviderCA:    opts.withProviderCA,
		ResourceParam: opts.withResourceParam,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	return c, nil
}

// Validate the provider configuration. It verifies the issuer is a http(s)
// URL, but it doesn't verify the Issuer is discoverable via an http request.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("provider config is nil: %w", ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("client id is empty: %w", ErrInvalidParameter)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is empty: %w", ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("discovery URL is empty: %w", ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("issuer %s is invalid (%s): %w", c.Issuer, err, ErrInvalidIssuer)
	}
	if !slices.Contains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("issuer %s schema is not http or https: %w", c.Issuer, ErrInvalidIssuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer %s has a query or fragment: %w", c.Issuer, ErrInvalidIssuer)
	}
	if strings.TrimSpace(c.ResourceParam) == "" {
		return fmt.Errorf("resource parameter is empty: %w", ErrInvalidParameter)
	}
	return nil
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	client, err := sdkhttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkhttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("could not parse CA PEM value: %w", ErrInvalidCACert)
		}
		return nil, fmt.Errorf("could not get an http client: %w", err)
	}
	return client, nil
}

// configOptions is the set of available options for NewConfig
type configOptions struct {
	withScopes        []string
	withProviderCA    string
	withResourceParam string
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{
		withResourceParam: DefaultResourceParam,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
