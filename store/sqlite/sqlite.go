// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqlite provides a store.Store backed by a SQLite database. Every
// process opening the same database file shares the records. SQLite has no
// cross-process change notification, so watchers poll.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/capsession/store"
	"github.com/hashicorp/capsession/store/sqlite/migrations"
	"github.com/hashicorp/go-hclog"

	_ "modernc.org/sqlite"
)

// DefaultPollInterval is how often watchers read the record.
const DefaultPollInterval = 250 * time.Millisecond

// Store is a SQLite database of session records.
type Store struct {
	db           *sql.DB
	pollInterval time.Duration
	logger       hclog.Logger
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies any
// pending migrations.
// Supported options:
//
//	WithLogger
//	WithPollInterval
func New(path string, opt ...Option) (*Store, error) {
	const op = "sqlite.New"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, store.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if opts.withPollInterval <= 0 {
		return nil, fmt.Errorf("%s: poll interval must be positive: %w", op, store.ErrInvalidParameter)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to open %s: %w", op, path, err)
	}
	s := &Store{
		db:           db,
		pollInterval: opts.withPollInterval,
		logger:       opts.withLogger,
	}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: unable to migrate %s: %w", op, path, err)
	}
	return s, nil
}

// dsn returns the URI filename of the database at path.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: url.Values{"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)"}}.Encode(),
	}
	return u.String()
}

// applyMigrations applies the embedded migrations which have not been
// applied yet.
func (s *Store) applyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Load implements store.Store.Load
func (s *Store) Load(ctx context.Context, key string) (*store.Record, error) {
	const op = "sqlite.(Store).Load"
	var expiry, updated int64
	var writer string
	err := s.db.QueryRowContext(ctx,
		`SELECT expiry_unix_ns, writer, updated_unix_ns FROM session_records WHERE key = ?`, key,
	).Scan(&expiry, &writer, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %s: %w", op, key, store.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &store.Record{
		Expiry:    time.Unix(0, expiry),
		Writer:    writer,
		UpdatedAt: time.Unix(0, updated),
	}, nil
}

// Save implements store.Store.Save
func (s *Store) Save(ctx context.Context, key string, r *store.Record) error {
	const op = "sqlite.(Store).Save"
	if err := store.ValidateKey(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r == nil {
		return fmt.Errorf("%s: record is nil: %w", op, store.ErrNilParameter)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_records (key, expiry_unix_ns, writer, updated_unix_ns) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   expiry_unix_ns = excluded.expiry_unix_ns,
		   writer = excluded.writer,
		   updated_unix_ns = excluded.updated_unix_ns`,
		key, r.Expiry.UnixNano(), r.Writer, r.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements store.Store.Delete
func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "sqlite.(Store).Delete"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Watch implements store.Store.Watch by polling the record.
func (s *Store) Watch(ctx context.Context, key string) (<-chan store.Change, error) {
	const op = "sqlite.(Store).Watch"
	if err := store.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	last, err := s.Load(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch := make(chan store.Change, 1)
	go s.poll(ctx, key, last, ch)
	return ch, nil
}

func (s *Store) poll(ctx context.Context, key string, last *store.Record, ch chan store.Change) {
	defer close(ch)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r, err := s.Load(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			r = nil
		case ctx.Err() != nil:
			return
		case err != nil:
			s.logger.Warn("unable to poll record", "key", key, "error", err)
			continue
		}
		if r.Equal(last) {
			continue
		}
		last = r
		store.Notify(ch, store.Change{Key: key, Record: r})
	}
}
