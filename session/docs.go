// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
session is a package for keeping a client side session alive while it is
used, and ending it when it is not.

A session is a deadline shared through a store.Store record named by
Config.UUID. Every Session created for the same record is one participant of
the session (a browser tab, a process, a worker):

* Touch records activity: it moves the deadline to now plus the idle timeout,
saves it to the store and re-arms the participant's timer. The other
participants adopt the later deadline when the store notifies them.

* When the timer fires the record is read once more. A deadline extended by
another participant is adopted, otherwise the session ends with ErrExpired and
the record is removed.

* Logout removes the record. Every other participant ends with
ErrInvalidated.

* Close leaves the session to the other participants.

Logout funcs registered with WithLogoutFunc, and the session's Context, tell
the application the session ended and why.
*/
package session
