// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"time"

	"github.com/hashicorp/capsession/store"
	"github.com/hashicorp/go-multierror"
)

// DefaultTimeout is the idle timeout of a session.
const DefaultTimeout = 30 * time.Minute

// Config represents the configuration of a session shared between
// participants.
type Config struct {
	// UUID names the shared session record. Every participant of one user's
	// session must use the same UUID, and different applications sharing a
	// store must use different ones.
	UUID string

	// Timeout is how long the session stays alive without activity.
	Timeout time.Duration

	// Debug enables verbose logging of the session's coordination.
	Debug bool
}

// NewConfig composes a new config for a session.
// Supported options:
//
//	WithTimeout
//	WithDebug
func NewConfig(uuid string, opt ...Option) (*Config, error) {
	opts := getConfigOpts(opt...)
	c := &Config{
		UUID:    uuid,
		Timeout: opts.withTimeout,
		Debug:   opts.withDebug,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return c, nil
}

// Validate the session configuration. Every violation is reported.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("session config is nil: %w", ErrNilParameter)
	}
	var result *multierror.Error
	if c.UUID == "" {
		result = multierror.Append(result, fmt.Errorf("uuid is empty: %w", ErrInvalidParameter))
	} else if err := store.ValidateKey(c.UUID); err != nil {
		result = multierror.Append(result, fmt.Errorf("uuid is not a valid record key: %w: %w", ErrInvalidParameter, err))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout %s is not greater than zero: %w", c.Timeout, ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

type configOptions struct {
	withTimeout time.Duration
	withDebug   bool
}

func configDefaults() configOptions {
	return configOptions{
		withTimeout: DefaultTimeout,
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
