// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package store defines where session records shared between participants
// live, and how participants learn that another participant changed them.
//
// MemoryStore shares records between participants of one process. The file
// and sqlite subpackages share them between processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
)

// Record is the shared state of one session.
type Record struct {
	// Expiry is the session's deadline.
	Expiry time.Time `json:"expiry"`

	// Writer is the id of the participant which last saved the record.
	Writer string `json:"writer"`

	// UpdatedAt is when the record was last saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// Equal reports whether r and o hold the same values.
func (r *Record) Equal(o *Record) bool {
	switch {
	case r == nil || o == nil:
		return r == o
	default:
		return r.Expiry.Equal(o.Expiry) && r.Writer == o.Writer && r.UpdatedAt.Equal(o.UpdatedAt)
	}
}

// Change notifies a watcher about a record. A nil Record means the record was
// removed.
type Change struct {
	Key    string
	Record *Record
}

// Store persists session records.
type Store interface {
	// Load returns ErrNotFound when there is no record for the key.
	Load(ctx context.Context, key string) (*Record, error)

	Save(ctx context.Context, key string, r *Record) error

	// Delete is not an error when there is no record for the key.
	Delete(ctx context.Context, key string) error

	// Watch delivers changes to the key's record until ctx is done, at which
	// point the channel is closed. Only the latest state is guaranteed to be
	// delivered when the watcher falls behind, except that a removal is
	// always delivered.
	Watch(ctx context.Context, key string) (<-chan Change, error)
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey returns an error if the key cannot name a record in every
// Store implementation (for example as a file name).
func ValidateKey(key string) error {
	const op = "store.ValidateKey"
	if !validKey.MatchString(key) {
		return fmt.Errorf("%s: key %q must be 1-128 letters, digits, '.', '_' or '-': %w", op, key, ErrInvalidParameter)
	}
	return nil
}

// Notify delivers c on ch, replacing an undelivered change when ch is full so
// that a slow watcher still observes the latest state. An undelivered removal
// is never replaced: it is delivered instead of c. It never blocks.
func Notify(ch chan Change, c Change) {
	for i := 0; i < 2; i++ {
		select {
		case ch <- c:
			return
		default:
		}
		select {
		case old := <-ch:
			if old.Record == nil {
				c = old
			}
		default:
		}
	}
}
