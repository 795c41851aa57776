// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/capsession/sdk/id"
	"github.com/hashicorp/capsession/store"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// storeTimeout bounds store calls made from timers and the watcher, which
// have no caller context.
const storeTimeout = 5 * time.Second

// LogoutFunc is called once when a session ends, with the cause of the end
// (ErrExpired, ErrInvalidated or ErrLoggedOut). It runs on its own goroutine.
type LogoutFunc func(cause error)

// Session is one participant of a session shared through a store.Store.
// Participants sharing a record keep each other alive: activity in one moves
// the deadline of all of them, and when one logs out or lets the session
// lapse, all of them end.
type Session struct {
	id         string
	key        string
	timeout    time.Duration
	store      store.Store
	logger     hclog.Logger
	now        func() time.Time
	tokenBound bool
	limiter    *rate.Limiter
	onLogout   []LogoutFunc

	ctx    context.Context
	cancel context.CancelCauseFunc

	watchCancel context.CancelFunc
	watchDone   chan struct{}

	mu           sync.Mutex
	deadline     time.Time
	timer        *time.Timer
	flushPending bool
	ended        bool
	cause        error
}

// New creates a participant of the session named by c.UUID. If the store
// holds no record a new session starts with a deadline of now+c.Timeout. If
// the record is live its deadline is adopted. If it lapsed, the returned
// Session has already ended with ErrExpired.
//
// Supported options:
//
//	WithStore
//	WithLogger
//	WithLogoutFunc
//	WithTokenBound
//	WithPersistInterval
//	WithNow
//
// See Session.Close() which must be called to release the session's
// resources.
func New(ctx context.Context, c *Config, opt ...Option) (*Session, error) {
	const op = "session.New"
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: session config is invalid: %w", op, err)
	}
	opts := getSessionOpts(opt...)
	if opts.withPersistInterval < 0 {
		return nil, fmt.Errorf("%s: persist interval %s is negative: %w", op, opts.withPersistInterval, ErrInvalidParameter)
	}
	participant, err := id.New("tab")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate participant id: %w", op, err)
	}

	s := &Session{
		id:         participant,
		key:        c.UUID,
		timeout:    c.Timeout,
		store:      opts.withStore,
		logger:     opts.withLogger,
		now:        opts.withNow,
		tokenBound: opts.withTokenBound,
		onLogout:   opts.withLogoutFuncs,
		watchDone:  make(chan struct{}),
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
		if c.Debug {
			s.logger = hclog.New(&hclog.LoggerOptions{
				Name:  "session",
				Level: hclog.Debug,
			})
		}
	}
	s.logger = s.logger.With("session", s.key, "participant", s.id)
	if opts.withPersistInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.withPersistInterval), 1)
	}
	s.ctx, s.cancel = context.WithCancelCause(context.Background())

	// subscribe before reading so no change made in between is missed
	watchCtx, watchCancel := context.WithCancel(context.Background())
	changes, err := s.store.Watch(watchCtx, s.key)
	if err != nil {
		watchCancel()
		s.cancel(ErrClosed)
		return nil, fmt.Errorf("%s: unable to watch session record: %w", op, err)
	}
	s.watchCancel = watchCancel

	rec, err := s.store.Load(ctx, s.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.deadline = s.now().Add(s.timeout)
		if err := s.store.Save(ctx, s.key, s.recordLocked()); err != nil {
			watchCancel()
			s.cancel(ErrClosed)
			return nil, fmt.Errorf("%s: unable to save session record: %w", op, err)
		}
		s.logger.Debug("started new session", "expiry", s.deadline)
	case err != nil:
		watchCancel()
		s.cancel(ErrClosed)
		return nil, fmt.Errorf("%s: unable to load session record: %w", op, err)
	case !rec.Expiry.After(s.now()):
		s.deadline = rec.Expiry
		close(s.watchDone)
		s.logger.Debug("session record already lapsed", "expiry", rec.Expiry)
		if err := s.end(ctx, ErrExpired, true); err != nil {
			s.logger.Warn("unable to remove lapsed session record", "error", err)
		}
		return s, nil
	default:
		s.deadline = rec.Expiry
		s.logger.Debug("joined session", "expiry", s.deadline, "writer", rec.Writer)
	}

	go s.watch(changes)

	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
	return s, nil
}

// ID returns the participant id of s, which is recorded as the writer of the
// session record.
func (s *Session) ID() string { return s.id }

// Key returns the name of the shared session record.
func (s *Session) Key() string { return s.key }

// Expiry returns the current deadline of the session.
func (s *Session) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Remaining returns the time left before the session expires, or zero once
// it has ended.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return 0
	}
	if d := s.deadline.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// Context returns a context which is cancelled when the session ends. Its
// cause is the cause of the end.
func (s *Session) Context() context.Context { return s.ctx }

// Done returns a channel which is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Err returns nil while the session is alive, and the cause of its end
// afterwards.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// SetExpiry moves the deadline to now plus the session's timeout and saves
// it to the store. With WithTokenBound, a token expiry given with
// WithTokenExpiry caps the deadline. The local timer is not re-armed, see
// ResetExpiryTimeout and Touch.
func (s *Session) SetExpiry(ctx context.Context, opt ...Option) error {
	const op = "Session.SetExpiry"
	opts := getExpiryOpts(opt...)
	s.mu.Lock()
	if s.ended {
		cause := s.cause
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, cause)
	}
	deadline := s.now().Add(s.timeout)
	if s.tokenBound && !opts.withTokenExpiry.IsZero() && opts.withTokenExpiry.Before(deadline) {
		deadline = opts.withTokenExpiry
	}
	s.deadline = deadline
	rec := s.recordLocked()
	persist := s.reserveLocked()
	s.mu.Unlock()

	if !persist {
		return nil
	}
	if err := s.store.Save(ctx, s.key, rec); err != nil {
		return fmt.Errorf("%s: unable to save session record: %w", op, err)
	}
	return nil
}

// ResetExpiryTimeout re-arms the local timer to fire at the current
// deadline.
func (s *Session) ResetExpiryTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.armLocked()
}

// Touch records activity: SetExpiry followed by ResetExpiryTimeout.
func (s *Session) Touch(ctx context.Context, opt ...Option) error {
	const op = "Session.Touch"
	if err := s.SetExpiry(ctx, opt...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.ResetExpiryTimeout()
	return nil
}

// Logout ends the session with ErrLoggedOut and removes the shared record,
// which ends every other participant with ErrInvalidated. Logging out an
// ended session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	const op = "Session.Logout"
	if err := s.end(ctx, ErrLoggedOut, true); err != nil {
		return fmt.Errorf("%s: unable to remove session record: %w", op, err)
	}
	return nil
}

// Close releases the session's timer and store subscription without logging
// out: the shared record and other participants are left alone. Logout funcs
// are not called.
func (s *Session) Close() {
	_ = s.end(context.Background(), ErrClosed, false)
	<-s.watchDone
}

// end ends the session once. It reports the error from removing the record,
// if remove was requested.
func (s *Session) end(ctx context.Context, cause error, remove bool) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	s.cause = cause
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	var err error
	if remove {
		err = s.store.Delete(ctx, s.key)
	}
	s.cancel(cause)
	s.watchCancel()
	if errors.Is(cause, ErrClosed) {
		s.logger.Debug("session closed")
		return err
	}
	s.logger.Info("session ended", "cause", cause.Error())
	for _, fn := range s.onLogout {
		go fn(cause)
	}
	return err
}

// armLocked (re)starts the timer for the current deadline.
func (s *Session) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	d := s.deadline.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.expire)
}

// expire runs when the timer fires. The record is read first since another
// participant may have extended the session without the change having been
// delivered yet.
func (s *Session) expire() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	if s.now().Before(s.deadline) {
		s.armLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec, err := s.store.Load(ctx, s.key)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.mu.Unlock()
		s.logger.Debug("session record removed before expiry")
		_ = s.end(ctx, ErrInvalidated, false)
		return
	case err != nil:
		s.logger.Warn("unable to read session record at expiry", "error", err)
	case rec.Expiry.After(s.deadline) && rec.Expiry.After(s.now()):
		s.deadline = rec.Expiry
		s.armLocked()
		s.mu.Unlock()
		s.logger.Debug("adopted extended deadline at expiry", "expiry", rec.Expiry, "writer", rec.Writer)
		return
	}
	if s.now().Before(s.deadline) {
		s.armLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if err := s.end(ctx, ErrExpired, true); err != nil {
		s.logger.Warn("unable to remove expired session record", "error", err)
	}
}

func (s *Session) watch(changes <-chan store.Change) {
	defer close(s.watchDone)
	for c := range changes {
		s.handleChange(c)
	}
}

func (s *Session) handleChange(c store.Change) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	r := c.Record
	switch {
	case r == nil:
		s.mu.Unlock()
		s.logger.Debug("session record removed by another participant")
		s.endInvalidated()
		return
	case r.Writer == s.id:
		s.mu.Unlock()
		return
	case !r.Expiry.After(s.now()):
		s.mu.Unlock()
		s.logger.Debug("another participant saved a lapsed deadline", "expiry", r.Expiry, "writer", r.Writer)
		s.endInvalidated()
		return
	case r.Expiry.After(s.deadline):
		s.deadline = r.Expiry
		s.armLocked()
		s.logger.Trace("adopted deadline", "expiry", r.Expiry, "writer", r.Writer)
	}
	s.mu.Unlock()
}

// endInvalidated ends the session with ErrInvalidated, then removes the
// record if this participant wrote it: a throttled write may have recreated
// it before the removal was delivered. A live record written by another
// participant belongs to a new session and is left alone.
func (s *Session) endInvalidated() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	_ = s.end(ctx, ErrInvalidated, false)
	if err := s.removeOwnRecord(ctx); err != nil {
		s.logger.Warn("unable to remove invalidated session record", "error", err)
	}
}

// removeOwnRecord deletes the record when this participant wrote it or it
// lapsed.
func (s *Session) removeOwnRecord(ctx context.Context) error {
	rec, err := s.store.Load(ctx, s.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case rec.Writer != s.id && rec.Expiry.After(s.now()):
		s.logger.Debug("keeping session record of another participant", "writer", rec.Writer)
		return nil
	}
	return s.store.Delete(ctx, s.key)
}

func (s *Session) recordLocked() *store.Record {
	return &store.Record{
		Expiry:    s.deadline,
		Writer:    s.id,
		UpdatedAt: s.now(),
	}
}

// reserveLocked reports whether the record should be saved now. When the
// persist interval does not allow it, a trailing flush is scheduled instead.
func (s *Session) reserveLocked() bool {
	if s.limiter == nil {
		return true
	}
	if s.flushPending {
		return false
	}
	r := s.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return true
	}
	s.flushPending = true
	time.AfterFunc(delay, s.flush)
	return false
}

func (s *Session) flush() {
	s.mu.Lock()
	s.flushPending = false
	if s.ended {
		s.mu.Unlock()
		return
	}
	rec := s.recordLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, s.key, rec); err != nil {
		s.logger.Error("unable to save session record", "error", err)
	}
}
