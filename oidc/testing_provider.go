// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/capsession/sdk/id"
	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestClientID is the client id accepted by a TestProvider unless
	// WithTestClientCreds is used.
	DefaultTestClientID = "test-client-id"

	// DefaultTestClientSecret is the client secret accepted by a TestProvider
	// unless WithTestClientCreds is used.
	DefaultTestClientSecret = "test-client-secret"

	// DefaultTestTokenTTL is the lifetime of access tokens issued by a
	// TestProvider unless WithTestTokenTTL is used.
	DefaultTestTokenTTL = time.Hour
)

// TestAccessTokenClaims are the claims of the access tokens issued by a
// TestProvider.
type TestAccessTokenClaims struct {
	Scope string `json:"scope,omitempty"`
	gojwt.RegisteredClaims
}

// TestProvider is a local TLS server that acts as an OIDC provider issuing
// access tokens with the client credentials grant. It serves discovery, a
// JWKS and a token endpoint, which make writing tests much easier.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks       *jose.JSONWebKeySet
	keyID      string
	privateKey *ecdsa.PrivateKey

	mu            sync.Mutex
	clientID      string
	clientSecret  string
	tokenTTL      time.Duration
	omitExpiresIn bool
	failStatus    int
	tokenRequests int
	lastResource  string
	resourceParam string

	t TestingT
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider. If t implements
// CleanupT the provider is stopped when the test completes, otherwise see
// TestProvider.Stop().
// Supported options:
//
//	WithTestPort
//	WithTestTokenTTL
//	WithTestClientCreds
func StartTestProvider(t TestingT, opt ...Option) *TestProvider {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	keyID, err := id.New("key")
	require.NoError(err)

	p := &TestProvider{
		keyID:         keyID,
		privateKey:    privateKey,
		clientID:      opts.withClientID,
		clientSecret:  opts.withClientSecret,
		tokenTTL:      opts.withTokenTTL,
		resourceParam: DefaultResourceParam,
		t:             t,
	}
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       privateKey.Public(),
				KeyID:     keyID,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}

	if opts.withPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	if v, ok := t.(CleanupT); ok {
		v.Cleanup(p.httpServer.Close)
	}

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client credentials accepted by the
// token endpoint.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the client credentials accepted by the token endpoint.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetTokenTTL configures the lifetime of issued access tokens.
func (p *TestProvider) SetTokenTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = ttl
}

// SetResourceParam configures the token request parameter read as the
// requested resource. Defaults to "resource".
func (p *TestProvider) SetResourceParam(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resourceParam = name
}

// OmitExpiresIn forces the token endpoint to omit expires_in, so clients
// must read the expiry from the access token.
func (p *TestProvider) OmitExpiresIn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitExpiresIn = true
}

// SetTokenFailure forces an error state where the token endpoint replies
// with the status code. A zero status restores normal operation.
func (p *TestProvider) SetTokenFailure(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failStatus = status
}

// TokenRequests returns the number of requests made to the token endpoint.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// LastResource returns the resource of the last token request.
func (p *TestProvider) LastResource() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResource
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// VerifyAccessToken verifies the signature and the registered claims of an
// access token issued by the test provider, the way a resource server would.
// An empty audience skips the audience check.
func (p *TestProvider) VerifyAccessToken(raw string, audience string) (*TestAccessTokenClaims, error) {
	const op = "TestProvider.VerifyAccessToken"
	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodES256.Alg()}),
		gojwt.WithIssuer(p.Addr()),
		gojwt.WithExpirationRequired(),
	}
	if audience != "" {
		parserOpts = append(parserOpts, gojwt.WithAudience(audience))
	}
	claims := &TestAccessTokenClaims{}
	_, err := gojwt.ParseWithClaims(raw, claims, func(t *gojwt.Token) (interface{}, error) {
		if kid, _ := t.Header["kid"].(string); kid != p.keyID {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return p.privateKey.Public(), nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer              string   `json:"issuer"`
			AuthEndpoint        string   `json:"authorization_endpoint"`
			TokenEndpoint       string   `json:"token_endpoint"`
			JWKSURI             string   `json:"jwks_uri"`
			GrantTypes          []string `json:"grant_types_supported"`
			SigningAlgs         []string `json:"id_token_signing_alg_values_supported"`
			TokenEndpointMethod []string `json:"token_endpoint_auth_methods_supported"`
		}{
			Issuer:              p.Addr(),
			AuthEndpoint:        p.Addr() + "/auth",
			TokenEndpoint:       p.Addr() + "/token",
			JWKSURI:             p.Addr() + "/certs",
			GrantTypes:          []string{"client_credentials"},
			SigningAlgs:         []string{string(jose.ES256)},
			TokenEndpointMethod: []string{"client_secret_basic", "client_secret_post"},
		}
		_ = p.writeJSON(w, &reply)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++

		clientID, clientSecret, ok := req.BasicAuth()
		if !ok {
			clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}
		switch {
		case p.failStatus != 0:
			_ = p.writeTokenErrorResponse(w, p.failStatus, "temporarily_unavailable", "forced failure")
			return
		case req.FormValue("grant_type") != "client_credentials":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
			return
		case clientID != p.clientID || clientSecret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unexpected client credentials")
			return
		}

		resource := req.FormValue(p.resourceParam)
		p.lastResource = resource

		now := time.Now()
		jti, err := id.New("at")
		if err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		claims := TestAccessTokenClaims{
			Scope: req.FormValue("scope"),
			RegisteredClaims: gojwt.RegisteredClaims{
				Issuer:    p.Addr(),
				Subject:   clientID,
				IssuedAt:  gojwt.NewNumericDate(now),
				NotBefore: gojwt.NewNumericDate(now.Add(-5 * time.Second)),
				ExpiresAt: gojwt.NewNumericDate(now.Add(p.tokenTTL)),
				ID:        jti,
			},
		}
		if resource != "" {
			claims.Audience = gojwt.ClaimStrings{resource}
		}
		jwtToken := gojwt.NewWithClaims(gojwt.SigningMethodES256, claims)
		jwtToken.Header["kid"] = p.keyID
		signed, err := jwtToken.SignedString(p.privateKey)
		if err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		reply := struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int64  `json:"expires_in,omitempty"`
			Scope       string `json:"scope,omitempty"`
		}{
			AccessToken: signed,
			TokenType:   "Bearer",
			Scope:       claims.Scope,
		}
		if !p.omitExpiresIn {
			reply.ExpiresIn = int64(p.tokenTTL / time.Second)
		}
		_ = p.writeJSON(w, &reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testProviderOptions struct {
	withPort         int
	withTokenTTL     time.Duration
	withClientID     string
	withClientSecret string
}

func testProviderDefaults() testProviderOptions {
	return testProviderOptions{
		withTokenTTL:     DefaultTestTokenTTL,
		withClientID:     DefaultTestClientID,
		withClientSecret: DefaultTestClientSecret,
	}
}

func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t TestingT, handler http.Handler, port int) *httptest.Server {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
