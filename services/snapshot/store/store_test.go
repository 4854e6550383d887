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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Version:   1,
		CreatedAt: "2025-03-01T10:00:00Z",
		Collected: 2,
		Tests: []snapshot.TestRecord{
			{ID: "pkg::TestA", Outcome: "passed", Duration: 0.25},
			{ID: "pkg::TestB", Outcome: "failed", Duration: 1.5, Sig: "0123456789ab"},
		},
	}
}

// exerciseStore runs the Store contract against one backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "main")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound), "get missing: %v", err)

	labels, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, labels)

	want := sampleSnapshot()
	require.NoError(t, s.Put(ctx, "main", want))
	require.NoError(t, s.Put(ctx, "feature-1", want))

	got, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)
	assert.Equal(t, want.Collected, got.Collected)
	assert.Equal(t, want.Tests, got.Tests)

	labels, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature-1", "main"}, labels)

	updated := sampleSnapshot()
	updated.Tests = updated.Tests[:1]
	require.NoError(t, s.Put(ctx, "main", updated))
	got, err = s.Get(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, got.Tests, 1)

	require.NoError(t, s.Delete(ctx, "main"))
	assert.True(t, errors.Is(s.Delete(ctx, "main"), ErrSnapshotNotFound))

	assert.True(t, errors.Is(s.Put(ctx, "../escape", want), ErrInvalidLabel))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	snap := sampleSnapshot()
	require.NoError(t, s.Put(ctx, "main", snap))

	snap.Tests[0].Outcome = "failed"
	got, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "passed", got.Tests[0].Outcome)

	got.Tests[0].Outcome = "skipped"
	again, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "passed", again.Tests[0].Outcome)
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "artifacts")))
}

func TestFileStore_LayoutAndClean(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), ".artifacts")
	s := NewFileStore(dir)

	require.NoError(t, s.Put(ctx, "v1", sampleSnapshot()))
	_, err := os.Stat(filepath.Join(dir, "snap_v1.json"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.jsonl"), []byte("{}\n"), 0644))
	labels, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, labels, "non-snapshot files are ignored")

	removed, err := s.Clean()
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	removed, err = s.Clean()
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFileStore_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snap_bad.json"), []byte("{"), 0644))

	_, err := NewFileStore(dir).Get(context.Background(), "bad")

	assert.True(t, errors.Is(err, snapshot.ErrInvalidSnapshot), "got %v", err)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenInMemoryBadgerStore()
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestBadgerStore_Persistent(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultBadgerConfig()
	cfg.Path = filepath.Join(t.TempDir(), "db")
	cfg.SyncWrites = false

	s, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "main", sampleSnapshot()))
	require.NoError(t, s.Close())

	reopened, err := OpenBadgerStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "main")
	require.NoError(t, err)
	assert.Len(t, got.Tests, 2)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	s, err := OpenInMemoryBadgerStore()
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateLabel(t *testing.T) {
	for _, ok := range []string{"main", "v1.2", "pr-12_rc"} {
		assert.NoError(t, ValidateLabel(ok), ok)
	}
	for _, bad := range []string{"", "a/b", "..", "with space", "é"} {
		assert.ErrorIs(t, ValidateLabel(bad), ErrInvalidLabel, bad)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw  string
		want Config
	}{
		{"gs://ci-bucket/snapdiff/main", Config{Backend: BackendGCS, Bucket: "ci-bucket", Prefix: "snapdiff/main"}},
		{"gs://ci-bucket", Config{Backend: BackendGCS, Bucket: "ci-bucket"}},
		{"badger:///var/lib/snapdiff", Config{Backend: BackendBadger, Path: "/var/lib/snapdiff"}},
		{"memory:", Config{Backend: BackendMemory}},
		{".artifacts", Config{Backend: BackendFile, Path: ".artifacts"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseURL(tt.raw))
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, Config{Backend: "s3"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestGCSObjectNaming(t *testing.T) {
	assert.Equal(t, "snap_main.json", gcsObjectPath("", "main"))
	assert.Equal(t, "ci/snapdiff/snap_main.json", gcsObjectPath("ci/snapdiff", "main"))
	assert.Equal(t, "snap_", gcsListPrefix(""))
	assert.Equal(t, "ci/snap_", gcsListPrefix("ci"))

	label, ok := labelFromObject("snap_pr-7.json")
	assert.True(t, ok)
	assert.Equal(t, "pr-7", label)
	_, ok = labelFromObject("history.jsonl")
	assert.False(t, ok)
}
