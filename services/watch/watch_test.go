// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/snapshot"
)

func writeSnap(t *testing.T, path string, outcome string) {
	t.Helper()
	s := snapshot.New([]snapshot.TestRecord{{ID: "pkg::TestA", Outcome: outcome}}, -1)
	require.NoError(t, snapshot.WriteFile(path, s))
}

func baseline() *snapshot.Snapshot {
	return snapshot.New([]snapshot.TestRecord{{ID: "pkg::TestA", Outcome: "passed"}}, -1)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x.json", nil, nil, func(Update) {}, Options{})
	assert.Error(t, err)

	_, err = New("x.json", nil, gate.NewGate(), nil, Options{})
	assert.Error(t, err)

	w, err := New("x.json", nil, gate.NewGate(), func(Update) {}, Options{})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(w.Path()))
	assert.Equal(t, DefaultOptions().Debounce, w.opts.Debounce)
}

func TestWatcher_Evaluate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap_current.json")
	writeSnap(t, path, "failed")

	w, err := New(path, baseline(), gate.NewGate(), func(Update) {}, Options{})
	require.NoError(t, err)

	u, err := w.Evaluate(context.Background())
	require.NoError(t, err)
	assert.False(t, u.Decision.Pass)
	assert.Equal(t, 1, u.Decision.Report.Summary.NewFailures)
	assert.Equal(t, 1, u.Snapshot.Len())
}

func TestWatcher_Evaluate_MissingFile(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing.json"), nil, gate.NewGate(), func(Update) {}, Options{})
	require.NoError(t, err)

	_, err = w.Evaluate(context.Background())
	assert.Error(t, err)
}

func TestWatcher_ReactsToWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap_current.json")
	writeSnap(t, path, "passed")

	updates := make(chan Update, 8)
	w, err := New(path, baseline(), gate.NewGate(), func(u Update) { updates <- u }, Options{
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.ErrorIs(t, w.Start(ctx), ErrAlreadyStarted)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0600))
	select {
	case u := <-updates:
		t.Fatalf("unexpected update for unrelated file: %+v", u)
	case <-time.After(150 * time.Millisecond):
	}

	// A half-written file is skipped without an update.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	select {
	case u := <-updates:
		t.Fatalf("unexpected update for corrupt file: %+v", u)
	case <-time.After(150 * time.Millisecond):
	}

	writeSnap(t, path, "failed")
	select {
	case u := <-updates:
		require.NotNil(t, u.Decision)
		assert.False(t, u.Decision.Pass)
		assert.Equal(t, "failed", u.Snapshot.Tests[0].Outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	writeSnap(t, path, "passed")

	w, err := New(path, nil, gate.NewGate(), func(Update) {}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	w.Stop()
}
