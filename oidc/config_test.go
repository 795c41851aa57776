// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	type args struct {
		issuer       string
		clientID     string
		clientSecret ClientSecret
		opt          []Option
	}
	tests := []struct {
		name      string
		args      args
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid-with-all-options",
			args: args{
				issuer:       "https://www.example.com/",
				clientID:     "client-id",
				clientSecret: "client-secret",
				opt: []Option{
					WithScopes([]string{"api.read"}),
					WithProviderCA("ca-cert"),
					WithResourceParam("audience"),
				},
			},
			want: &Config{
				Issuer:        "https://www.example.com/",
				ClientID:      "client-id",
				ClientSecret:  "client-secret",
				Scopes:        []string{"api.read"},
				ProviderCA:    "ca-cert",
				ResourceParam: "audience",
			},
		},
		{
			name: "defaults",
			args: args{
				issuer:       "http://localhost:8200",
				clientID:     "client-id",
				clientSecret: "client-secret",
			},
			want: &Config{
				Issuer:        "http://localhost:8200",
				ClientID:      "client-id",
				ClientSecret:  "client-secret",
				ResourceParam: DefaultResourceParam,
			},
		},
		{
			name: "missing-client-id",
			args: args{
				issuer:       "https://www.example.com/",
				clientSecret: "client-secret",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "missing-client-secret",
			args: args{
				issuer:   "https://www.example.com/",
				clientID: "client-id",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "missing-issuer",
			args: args{
				clientID:     "client-id",
				clientSecret: "client-secret",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "bad-issuer-scheme",
			args: args{
				issuer:       "ftp://www.example.com/",
				clientID:     "client-id",
				clientSecret: "client-secret",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name: "issuer-with-query",
			args: args{
				issuer:       "https://www.example.com/?tenant=1",
				clientID:     "client-id",
				clientSecret: "client-secret",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name: "empty-resource-param",
			args: args{
				issuer:       "https://www.example.com/",
				clientID:     "client-id",
				clientSecret: "client-secret",
				opt:          []Option{WithResourceParam(" ")},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.args.issuer, tt.args.clientID, tt.args.clientSecret, tt.args.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				if tt.wantIsErr != nil {
					assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	var c *Config
	assert.ErrorIs(t, c.Validate(), ErrNilParameter)
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)

	t.Run("with-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig(tp.Addr(), "client-id", "client-secret", WithProviderCA(tp.CACert()))
		require.NoError(err)
		client, err := c.HTTPClient()
		require.NoError(err)
		resp, err := client.Get(tp.Addr() + "/.well-known/openid-configuration")
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode)
	})
	t.Run("bad-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig(tp.Addr(), "client-id", "client-secret", WithProviderCA("not a pem"))
		require.NoError(err)
		_, err = c.HTTPClient()
		require.Error(err)
		assert.ErrorIs(t, err, ErrInvalidCACert)
	})
}

func TestClientSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	const secret ClientSecret = "super-secret"

	assert.Equal(RedactedClientSecret, secret.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%s", secret))

	c := Config{ClientSecret: secret}
	b, err := json.Marshal(c)
	require.NoError(err)
	assert.Contains(string(b), RedactedClientSecret)
	assert.NotContains(string(b), string(secret))
}
