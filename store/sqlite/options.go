// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sqlite

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withLogger       hclog.Logger
	withPollInterval time.Duration
}

func defaults() options {
	return options{
		withLogger:       hclog.NewNullLogger(),
		withPollInterval: DefaultPollInterval,
	}
}

func getOpts(opt ...Option) options {
	opts := defaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithLogger provides an optional logger
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *options:
			if l != nil {
				v.withLogger = l
			}
		}
	}
}

// WithPollInterval provides an optional interval between watcher reads
func WithPollInterval(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *options:
			v.withPollInterval = d
		}
	}
}
