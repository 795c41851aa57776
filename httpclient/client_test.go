// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient_test

import (
	"bytes"
	"context"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/capsession/httpclient"
	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/capsession/session"
	"github.com/hashicorp/capsession/store"
	"github.com/hashicorp/capsession/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiResource = "https://api.example.com"

// todosAPI is a resource server accepting access tokens of the test provider
// issued for apiResource.
type todosAPI struct {
	srv       *httptest.Server
	caCert    string
	hits      atomic.Int32
	rejectAll atomic.Bool
}

func startTodosAPI(t *testing.T, tp *oidc.TestProvider) *todosAPI {
	t.Helper()
	api := &todosAPI{}
	api.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || api.rejectAll.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		claims, err := tp.VerifyAccessToken(raw, apiResource)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"owner":"`+claims.Subject+`","todos":[]}`)
	}))
	t.Cleanup(api.srv.Close)

	var buf bytes.Buffer
	require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: api.srv.Certificate().Raw}))
	api.caCert = buf.String()
	return api
}

func testOIDCProvider(t *testing.T, tp *oidc.TestProvider) *oidc.Provider {
	t.Helper()
	require := require.New(t)
	clientID, clientSecret := tp.ClientCreds()
	c, err := oidc.NewConfig(tp.Addr(), clientID, oidc.ClientSecret(clientSecret), oidc.WithProviderCA(tp.CACert()))
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

func newSession(t *testing.T, st store.Store, opt ...session.Option) *session.Session {
	t.Helper()
	require := require.New(t)
	c, err := session.NewConfig("todos-session", session.WithTimeout(time.Hour))
	require.NoError(err)
	opt = append([]session.Option{session.WithStore(st)}, opt...)
	s, err := session.New(context.Background(), c, opt...)
	require.NoError(err)
	t.Cleanup(s.Close)
	return s
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		baseURL   string
		opt       []httpclient.Option
		wantErr   bool
		wantIsErr error
	}{
		{name: "valid", baseURL: "https://api.example.com/v1/"},
		{name: "empty-base-url", baseURL: ""},
		{name: "relative-base-url", baseURL: "/v1", wantErr: true, wantIsErr: httpclient.ErrInvalidParameter},
		{name: "bad-base-url", baseURL: "https://[::1", wantErr: true, wantIsErr: httpclient.ErrInvalidParameter},
		{
			name:      "negative-timeout",
			baseURL:   "https://api.example.com",
			opt:       []httpclient.Option{httpclient.WithTimeout(-time.Second)},
			wantErr:   true,
			wantIsErr: httpclient.ErrInvalidParameter,
		},
		{
			name:      "logout-without-session",
			baseURL:   "https://api.example.com",
			opt:       []httpclient.Option{httpclient.WithLogoutOnUnauthorized()},
			wantErr:   true,
			wantIsErr: httpclient.ErrInvalidParameter,
		},
		{
			name:    "bad-ca",
			baseURL: "https://api.example.com",
			opt:     []httpclient.Option{httpclient.WithCACert("not a pem")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c, err := httpclient.NewClient(tt.baseURL, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(c)
				if tt.wantIsErr != nil {
					assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				}
				return
			}
			require.NoError(err)
			assert.NotNil(c.HTTPClient())
			assert.Nil(c.Tokens())
			assert.Nil(c.Session())
		})
	}
}

func TestClient_NewRequest(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	c, err := httpclient.NewClient("https://api.example.com/v1/")
	require.NoError(err)
	req, err := c.NewRequest(ctx, http.MethodGet, "todos?done=false", nil)
	require.NoError(err)
	assert.Equal("https://api.example.com/v1/todos?done=false", req.URL.String())

	req, err = c.NewRequest(ctx, http.MethodGet, "https://other.example.com/x", nil)
	require.NoError(err)
	assert.Equal("https://other.example.com/x", req.URL.String())

	bare, err := httpclient.NewClient("")
	require.NoError(err)
	_, err = bare.NewRequest(ctx, http.MethodGet, "/todos", nil)
	assert.ErrorIs(err, httpclient.ErrInvalidParameter)

	_, err = c.Do(nil)
	assert.ErrorIs(err, httpclient.ErrNilParameter)
}

func TestClient_Get(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("acquires-attaches-and-renews", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)
		s := newSession(t, store.NewMemoryStore())

		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(testOIDCProvider(t, tp), apiResource),
			httpclient.WithSession(s),
			httpclient.WithCACert(api.caCert),
		)
		require.NoError(err)
		require.NotNil(c.Tokens())
		assert.Equal(s, c.Session())

		before := s.Expiry()
		time.Sleep(5 * time.Millisecond)
		for i := 0; i < 3; i++ {
			resp, err := c.Get(ctx, "/todos")
			require.NoError(err)
			assert.Equal(http.StatusOK, resp.StatusCode)
			assert.Contains(readBody(t, resp), oidc.DefaultTestClientID)
		}
		assert.Equal(1, tp.TokenRequests(), "tokens are cached")
		assert.Equal(apiResource, tp.LastResource())
		assert.True(s.Expiry().After(before), "successful responses renew the session")
	})
	t.Run("token-unavailable", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)
		p := testOIDCProvider(t, tp)
		tp.SetTokenFailure(http.StatusServiceUnavailable)

		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(p, apiResource),
			httpclient.WithCACert(api.caCert),
		)
		require.NoError(err)
		_, err = c.Get(ctx, "/todos")
		require.Error(err)
		assert.ErrorIs(err, httpclient.ErrTokenUnavailable)
		assert.ErrorIs(err, token.ErrAcquireFailed)
		assert.Zero(api.hits.Load(), "rejected requests are not sent")
	})
	t.Run("unauthorized-invalidates-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)

		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(testOIDCProvider(t, tp), apiResource),
			httpclient.WithCACert(api.caCert),
		)
		require.NoError(err)

		api.rejectAll.Store(true)
		resp, err := c.Get(ctx, "/todos")
		require.NoError(err)
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
		readBody(t, resp)

		api.rejectAll.Store(false)
		resp, err = c.Get(ctx, "/todos")
		require.NoError(err)
		assert.Equal(http.StatusOK, resp.StatusCode)
		readBody(t, resp)
		assert.Equal(2, tp.TokenRequests(), "the rejected token was dropped")
	})
	t.Run("logout-on-unauthorized", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)
		s := newSession(t, store.NewMemoryStore())

		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(testOIDCProvider(t, tp), apiResource),
			httpclient.WithSession(s),
			httpclient.WithCACert(api.caCert),
			httpclient.WithLogoutOnUnauthorized(),
		)
		require.NoError(err)

		api.rejectAll.Store(true)
		resp, err := c.Get(ctx, "/todos")
		require.NoError(err)
		resp.Body.Close()
		assert.ErrorIs(s.Err(), session.ErrLoggedOut)

		_, err = c.Get(ctx, "/todos")
		assert.ErrorIs(err, httpclient.ErrSessionEnded)
		assert.Equal(int32(1), api.hits.Load())
	})
	t.Run("other-participant-logs-out", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)
		st := store.NewMemoryStore()
		mine := newSession(t, st)
		other := newSession(t, st)

		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(testOIDCProvider(t, tp), apiResource),
			httpclient.WithSession(mine),
			httpclient.WithCACert(api.caCert),
		)
		require.NoError(err)
		resp, err := c.Get(ctx, "/todos")
		require.NoError(err)
		readBody(t, resp)

		require.NoError(other.Logout(ctx))
		select {
		case <-mine.Done():
		case <-time.After(5 * time.Second):
			require.FailNow("session was not invalidated")
		}
		_, err = c.Get(ctx, "/todos")
		require.Error(err)
		assert.ErrorIs(err, httpclient.ErrSessionEnded)
		assert.ErrorIs(err, session.ErrInvalidated)
	})
	t.Run("custom-pipeline", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		api := startTodosAPI(t, tp)

		var monitored atomic.Int32
		c, err := httpclient.NewClient(api.srv.URL,
			httpclient.WithTokenProvider(testOIDCProvider(t, tp), apiResource),
			httpclient.WithBaseTransport(api.srv.Client().Transport),
			httpclient.WithRequestInterceptor(func(req *http.Request) (*http.Request, error) {
				assert.NotEmpty(req.Header.Get("Authorization"), "runs after the bearer token was attached")
				out := req.Clone(req.Context())
				out.Header.Set("X-Request-Source", "test")
				return out, nil
			}),
			httpclient.WithResponseMonitor(func(req *http.Request, _ *http.Response) {
				assert.Equal("test", req.Header.Get("X-Request-Source"))
				monitored.Add(1)
			}),
		)
		require.NoError(err)
		resp, err := c.Get(ctx, "/todos")
		require.NoError(err)
		readBody(t, resp)
		assert.Equal(int32(1), monitored.Load())
	})
}
