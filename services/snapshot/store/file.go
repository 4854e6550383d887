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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// DefaultArtifactsDir is where the file backend keeps snapshots.
const DefaultArtifactsDir = ".artifacts"

// FileStore keeps one snap_<label>.json file per label in a directory.
//
// Thread Safety: writes are atomic renames, so concurrent readers never
// see partial files. Concurrent writers to the same label race; last wins.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first Put. An empty dir uses DefaultArtifactsDir.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultArtifactsDir
	}
	return &FileStore{dir: dir}
}

// Dir returns the artifacts directory.
func (f *FileStore) Dir() string { return f.dir }

// Path returns the file path used for label.
func (f *FileStore) Path(label string) string {
	return filepath.Join(f.dir, objectName(label))
}

// Get implements Store.
func (f *FileStore) Get(ctx context.Context, label string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	s, err := snapshot.ReadFile(f.Path(label))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, f.Path(label))
	}
	return s, err
}

// Put implements Store.
func (f *FileStore) Put(ctx context.Context, label string, s *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateLabel(label); err != nil {
		return err
	}
	return snapshot.WriteFile(f.Path(label), s)
}

// List implements Store. A missing directory lists nothing.
func (f *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	labels := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if label, ok := labelFromObject(entry.Name()); ok {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Delete implements Store.
func (f *FileStore) Delete(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateLabel(label); err != nil {
		return err
	}
	err := os.Remove(f.Path(label))
	if errors.Is(err, os.ErrNotExist) {
		return ErrSnapshotNotFound
	}
	return err
}

// Clean removes the whole artifacts directory, including history and
// report files kept next to the snapshots. It reports whether anything
// was removed.
func (f *FileStore) Clean() (bool, error) {
	if _, err := os.Stat(f.dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return false, fmt.Errorf("remove %s: %w", f.dir, err)
	}
	return true, nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }
