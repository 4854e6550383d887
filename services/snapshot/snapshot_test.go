// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		raw  string
		want Outcome
	}{
		{"passed", OutcomePassed},
		{"failed", OutcomeFailed},
		{"skipped", OutcomeSkipped},
		{"xfailed", OutcomeXFailed},
		{"xfail", OutcomeXFailed},
		{"xpassed", OutcomeXPassed},
		{"xpass", OutcomeXPassed},
		{"error", OutcomeOther},
		{"", OutcomeOther},
		{"PASSED", OutcomeOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseOutcome(tt.raw); got != tt.want {
				t.Errorf("ParseOutcome(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestOutcome_Predicates(t *testing.T) {
	assert.True(t, OutcomeXFailed.IsXFailLike())
	assert.False(t, OutcomeFailed.IsXFailLike())
	assert.True(t, OutcomeXPassed.IsXPassLike())
	assert.False(t, OutcomePassed.IsXPassLike())

	for _, o := range []Outcome{OutcomePassed, OutcomeFailed, OutcomeXFailed, OutcomeXPassed} {
		assert.True(t, o.IsVerdict(), o.String())
	}
	assert.False(t, OutcomeSkipped.IsVerdict())
	assert.False(t, OutcomeOther.IsVerdict())
}

func TestBuildIndex_LastWriteWinsKeepsFirstPosition(t *testing.T) {
	idx := BuildIndex([]TestRecord{
		{ID: "a", Outcome: "passed"},
		{ID: "b", Outcome: "passed"},
		{ID: "a", Outcome: "failed", Sig: "abc"},
	})

	assert.Equal(t, []string{"a", "b"}, idx.IDs())
	assert.Equal(t, 2, idx.Len())

	rec, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, "failed", rec.Outcome)
	assert.Equal(t, "abc", rec.Sig)

	assert.False(t, idx.Has("c"))
}

func TestIndexOf_NilSnapshot(t *testing.T) {
	idx := IndexOf(nil)
	assert.Equal(t, 0, idx.Len())
}

func TestDecode_TolerantDurations(t *testing.T) {
	input := `{"version":1,"created_at":"2025-01-02T03:04:05Z","collected":5,"tests":[
		{"id":"num","outcome":"passed","duration":1.5},
		{"id":"str","outcome":"passed","duration":"0.25"},
		{"id":"null","outcome":"passed","duration":null},
		{"id":"missing","outcome":"passed"},
		{"id":"bad","outcome":"passed","duration":"slow"},
		{"id":"obj","outcome":"failed","duration":{"s":1},"sig":"deadbeef0000"}
	]}`

	snap, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, snap.Tests, 6)

	byID := map[string]TestRecord{}
	for _, rec := range snap.Tests {
		byID[rec.ID] = rec
	}

	assert.Equal(t, 1.5, byID["num"].Duration)
	assert.True(t, byID["num"].ValidDuration())
	assert.Equal(t, 0.25, byID["str"].Duration)
	assert.True(t, byID["null"].ValidDuration())
	assert.True(t, byID["missing"].ValidDuration())

	assert.Equal(t, 0.0, byID["bad"].Duration)
	assert.True(t, byID["bad"].DurationMalformed)
	assert.False(t, byID["bad"].ValidDuration())
	assert.True(t, byID["obj"].DurationMalformed)
	assert.Equal(t, "deadbeef0000", byID["obj"].Sig)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		_, err := Decode(strings.NewReader("{"))
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})

	t.Run("newer version", func(t *testing.T) {
		_, err := Decode(strings.NewReader(`{"version":2,"tests":[]}`))
		assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := Decode(strings.NewReader(`{"version":1,"tests":[{"id":"","outcome":"passed"}]}`))
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))
	})

	t.Run("missing version defaults", func(t *testing.T) {
		snap, err := Decode(strings.NewReader(`{"tests":[]}`))
		require.NoError(t, err)
		assert.Equal(t, SnapshotVersion, snap.Version)
	})
}

func TestEncode_RoundsDurationAndOmitsEmptySig(t *testing.T) {
	snap := &Snapshot{
		Version:   1,
		CreatedAt: "2025-01-02T03:04:05Z",
		Collected: 2,
		Tests: []TestRecord{
			{ID: "a", Outcome: "passed", Duration: 0.12345678},
			{ID: "b", Outcome: "failed", Duration: 1, Sig: "0123456789ab"},
			{ID: "c", Outcome: "passed", Duration: 3, DurationMalformed: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))

	out := buf.String()
	assert.Contains(t, out, `{"id":"a","outcome":"passed","duration":0.123457}`)
	assert.Contains(t, out, `"sig":"0123456789ab"`)
	assert.Contains(t, out, `{"id":"c","outcome":"passed","duration":0}`)
	assert.NotContains(t, out, `"sig":""`)
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap_main.json")
	snap := New([]TestRecord{
		{ID: "pkg::TestA", Outcome: "passed", Duration: 0.5},
		{ID: "pkg::TestB", Outcome: "failed", Duration: 0.25, Sig: "aaaaaaaaaaaa"},
	}, 2)

	require.NoError(t, WriteFile(path, snap))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap.CreatedAt, got.CreatedAt)
	assert.Equal(t, 2, got.Collected)
	assert.Equal(t, snap.Tests, got.Tests)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should not be left behind")
}

func TestNew_StampsUTC(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Second)
	snap := New(nil, -1)

	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, 0, snap.Collected)
	created := snap.Created()
	assert.False(t, created.Before(before), "created %v before %v", created, before)
	assert.True(t, strings.HasSuffix(snap.CreatedAt, "Z"))
}

func TestFailureSignature(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", FailureSignature(""))
		assert.Equal(t, "", FailureSignature("   \nsecond line"))
	})

	t.Run("first line only", func(t *testing.T) {
		a := FailureSignature("AssertionError: 1 != 2\n  at line 10")
		b := FailureSignature("  AssertionError: 1 != 2  \n  at line 99")
		assert.Len(t, a, 12)
		assert.Equal(t, a, b)
	})

	t.Run("hex shape", func(t *testing.T) {
		sig := FailureSignature("boom")
		assert.Regexp(t, `^[0-9a-f]{12}$`, sig)
		assert.Equal(t, sig, FailureSignature("boom\r\nmore"))
	})

	t.Run("truncates long lines", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		assert.Equal(t, FailureSignature(long), FailureSignature(long+"yyyy"))
		assert.NotEqual(t, FailureSignature(long[:499]), FailureSignature(long))
	})
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		id   string
		mode NormalizeMode
		want string
	}{
		{"tests/unit/test_a.py::test_x", NormalizeOff, "tests/unit/test_a.py::test_x"},
		{"tests/unit/test_a.py::test_x", NormalizeBasename, "test_a.py::test_x"},
		{`tests\unit\test_a.py::C::test_x`, NormalizeBasename, "test_a.py::C::test_x"},
		{"no_separator", NormalizeBasename, "no_separator"},
		{"test_a.py::test_x[1-2]", NormalizeNoParams, "test_a.py::test_x"},
		{"test_a.py::test_x", NormalizeNoParams, "test_a.py::test_x"},
		{"[weird]", NormalizeNoParams, "[weird]"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.id, tt.mode))
		})
	}
}

func TestParseNormalizeMode(t *testing.T) {
	mode, err := ParseNormalizeMode("")
	require.NoError(t, err)
	assert.Equal(t, NormalizeOff, mode)

	mode, err = ParseNormalizeMode("Basename")
	require.NoError(t, err)
	assert.Equal(t, NormalizeBasename, mode)

	_, err = ParseNormalizeMode("hash")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	snap := &Snapshot{Collected: 6, Tests: []TestRecord{
		{ID: "a", Outcome: "passed", Duration: 0.1},
		{ID: "b", Outcome: "failed", Duration: 2.0},
		{ID: "c", Outcome: "xfail", Duration: 0.5},
		{ID: "d", Outcome: "error", Duration: 0.5},
		{ID: "e", Outcome: "passed", Duration: 9, DurationMalformed: true},
		{ID: "f", Outcome: "skipped", Duration: 0},
	}}

	sum := Summarize(snap, 2)

	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 2, sum.Counts[OutcomePassed])
	assert.Equal(t, 1, sum.Counts[OutcomeXFailed])
	assert.Equal(t, 1, sum.Counts[OutcomeOther])
	require.Len(t, sum.Slowest, 2)
	assert.Equal(t, "b", sum.Slowest[0].ID)
	assert.Equal(t, "c", sum.Slowest[1].ID, "ties keep snapshot order")
	assert.Equal(t, []string{"a", "e"}, []string{sum.ByKind[OutcomePassed][0].ID, sum.ByKind[OutcomePassed][1].ID})
}
