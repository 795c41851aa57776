// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		uuid      string
		opt       []Option
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "defaults",
			uuid: "todos-session",
			want: &Config{UUID: "todos-session", Timeout: DefaultTimeout},
		},
		{
			name: "with-options",
			uuid: "todos-session",
			opt:  []Option{WithTimeout(time.Minute), WithDebug(), nil},
			want: &Config{UUID: "todos-session", Timeout: time.Minute, Debug: true},
		},
		{
			name:      "empty-uuid",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "unsafe-uuid",
			uuid:      "../escape",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "zero-timeout",
			uuid:      "todos-session",
			opt:       []Option{WithTimeout(0)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.uuid, tt.opt...)
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
	t.Run("nil", func(t *testing.T) {
		var c *Config
		assert.ErrorIs(t, c.Validate(), ErrNilParameter)
	})
	t.Run("all-violations", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{Timeout: -time.Second}
		err := c.Validate()
		require.Error(err)
		var merr *multierror.Error
		require.True(errors.As(err, &merr))
		assert.Len(merr.Errors, 2)
	})
	t.Run("valid", func(t *testing.T) {
		c := &Config{UUID: "a.b-c_d", Timeout: time.Second}
		assert.NoError(t, c.Validate())
	})
}
