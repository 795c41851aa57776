// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"
	"sync"
)

// watchBuffer is the channel capacity handed to local watchers.
const watchBuffer = 8

// MemoryStore keeps records in memory. Participants sharing a MemoryStore
// behave like tabs sharing browser storage: each save or delete is announced
// to every watcher of the key.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	watchers map[string]map[chan Change]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  map[string]Record{},
		watchers: map[string]map[chan Change]struct{}{},
	}
}

// Load implements Store.Load
func (m *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	const op = "MemoryStore.Load"
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", op, key, ErrNotFound)
	}
	return &r, nil
}

// Save implements Store.Save
func (m *MemoryStore) Save(_ context.Context, key string, r *Record) error {
	const op = "MemoryStore.Save"
	if err := ValidateKey(key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r == nil {
		return fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = *r
	cp := *r
	m.notifyLocked(Change{Key: key, Record: &cp})
	return nil
}

// Delete implements Store.Delete
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return nil
	}
	delete(m.records, key)
	m.notifyLocked(Change{Key: key})
	return nil
}

// Watch implements Store.Watch
func (m *MemoryStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	const op = "MemoryStore.Watch"
	if err := ValidateKey(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch := make(chan Change, watchBuffer)
	m.mu.Lock()
	if m.watchers[key] == nil {
		m.watchers[key] = map[chan Change]struct{}{}
	}
	m.watchers[key][ch] = struct{}{}
	m.mu.Unlock()

	context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[key], ch)
		if len(m.watchers[key]) == 0 {
			delete(m.watchers, key)
		}
		close(ch)
	})
	return ch, nil
}

func (m *MemoryStore) notifyLocked(c Change) {
	for ch := range m.watchers[c.Key] {
		Notify(ch, c)
	}
}
