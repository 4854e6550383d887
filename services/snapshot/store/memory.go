// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// MemoryStore is an in-memory Store.
//
// Snapshots are copied on Put and Get so callers cannot alias stored data.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*snapshot.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*snapshot.Snapshot)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, label string) (*snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[label]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return clone(s), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, label string, s *snapshot.Snapshot) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[label] = clone(s)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([]string, 0, len(m.snapshots))
	for label := range m.snapshots {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[label]; !ok {
		return ErrSnapshotNotFound
	}
	delete(m.snapshots, label)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func clone(s *snapshot.Snapshot) *snapshot.Snapshot {
	if s == nil {
		return &snapshot.Snapshot{Version: snapshot.SnapshotVersion}
	}
	out := *s
	out.Tests = append([]snapshot.TestRecord(nil), s.Tests...)
	return &out
}
