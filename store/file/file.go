// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package file provides a store.Store which keeps each session record as a
// JSON file in a directory. Every process pointing at the same directory
// shares the records, and learns about changes made by the others through
// filesystem notifications.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/capsession/store"
	"github.com/hashicorp/go-hclog"
)

const recordExt = ".json"

// Store is a directory of session records.
type Store struct {
	dir    string
	logger hclog.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a Store rooted at dir, creating the directory if needed.
// Supported options:
//
//	WithLogger
func New(dir string, opt ...Option) (*Store, error) {
	const op = "file.New"
	if dir == "" {
		return nil, fmt.Errorf("%s: dir is empty: %w", op, store.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: unable to create %s: %w", op, dir, err)
	}
	return &Store{
		dir:    dir,
		logger: opts.withLogger,
	}, nil
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+recordExt)
}

// Load implements store.Store.Load
func (s *Store) Load(_ context.Context, key string) (*store.Record, error) {
	const op = "file.(Store).Load"
	if err := store.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := os.ReadFile(s.path(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %s: %w", op, key, store.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var r store.Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%s: unable to decode %s: %w", op, key, err)
	}
	return &r, nil
}

// Save implements store.Store.Save. The record is written to a temporary
// file which is renamed over the old record, so readers never observe a
// partial write.
func (s *Store) Save(_ context.Context, key string, r *store.Record) error {
	const op = "file.(Store).Save"
	if err := store.ValidateKey(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r == nil {
		return fmt.Errorf("%s: record is nil: %w", op, store.ErrNilParameter)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: unable to encode record: %w", op, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements store.Store.Delete
func (s *Store) Delete(_ context.Context, key string) error {
	const op = "file.(Store).Delete"
	if err := store.ValidateKey(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Watch implements store.Store.Watch using filesystem notifications on the
// store's directory.
func (s *Store) Watch(ctx context.Context, key string) (<-chan store.Change, error) {
	const op = "file.(Store).Watch"
	if err := store.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create watcher: %w", op, err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s: unable to watch %s: %w", op, s.dir, err)
	}

	// changes are reported relative to the record as it is now
	last, err := s.Load(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		w.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch := make(chan store.Change, 1)
	go s.run(ctx, w, key, last, ch)
	return ch, nil
}

func (s *Store) run(ctx context.Context, w *fsnotify.Watcher, key string, last *store.Record, ch chan store.Change) {
	defer close(ch)
	defer w.Close()

	target := s.path(key)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			r, err := s.Load(ctx, key)
			switch {
			case errors.Is(err, store.ErrNotFound):
				r = nil
			case err != nil:
				s.logger.Warn("unable to read changed record", "key", key, "error", err)
				continue
			}
			if r.Equal(last) {
				continue
			}
			last = r
			s.logger.Trace("record changed", "key", key, "op", event.Op.String())
			store.Notify(ch, store.Change{Key: key, Record: r})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("watch error", "dir", s.dir, "error", err)
		}
	}
}
