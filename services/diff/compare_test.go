// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_TransitionMatrix(t *testing.T) {
	a := snap(
		rec("reg", "passed", 0),
		rec("fix", "failed", 0),
		rec("pfail", "failed", 0),
		rec("ppass", "passed", 0),
		rec("gone", "skipped", 0),
		rec("newx", "passed", 0),
		rec("resx", "xfail", 0),
		rec("resxp", "xfailed", 0),
		rec("persx", "xfailed", 0),
		rec("xp", "passed", 0),
	)
	b := snap(
		rec("reg", "failed", 0),
		rec("fix", "passed", 0),
		rec("pfail", "failed", 0),
		rec("ppass", "passed", 0),
		rec("newx", "xfailed", 0),
		rec("resx", "passed", 0),
		rec("resxp", "xpassed", 0),
		rec("persx", "xfail", 0),
		rec("xp", "xpass", 0),
		rec("addp", "passed", 0),
		rec("addf", "failed", 0),
		rec("addx", "xfailed", 0),
	)

	c := Compare(a, b, DefaultCompareOptions())

	assert.Equal(t, []string{"reg"}, c.Regressions)
	assert.Equal(t, []string{"fix"}, c.Fixes)
	assert.Equal(t, []string{"pfail"}, c.PersistentFail)
	assert.Equal(t, []string{"ppass"}, c.PersistentPass)
	assert.Equal(t, []Removal{{ID: "gone", Outcome: "skipped"}}, c.Removed)
	assert.Equal(t, []string{"newx", "addx"}, c.NewXFails)
	assert.Equal(t, []string{"resx", "resxp"}, c.ResolvedXFails)
	assert.Equal(t, []string{"persx"}, c.PersistentXFails)
	assert.Equal(t, []string{"resxp", "xp"}, c.XPassed)
	assert.Equal(t, []string{"addp", "addx"}, c.AddedPass)
	assert.Equal(t, []string{"addf"}, c.AddedFail)
	assert.Nil(t, c.Slower)

	// fixes + regressions + added pass/fail + removed + new xfails + resolved xfails
	assert.Equal(t, 1+1+2+1+1+2+2, c.TotalChanged)
}

func TestCompare_Perf(t *testing.T) {
	a := snap(
		rec("b_slow", "passed", 1.0),
		rec("a_slow", "passed", 0.1),
		rec("fast", "passed", 2.0),
		rec("tiny", "passed", 0.01),
		rec("zero", "passed", 0),
	)
	b := snap(
		rec("b_slow", "passed", 1.5),
		rec("a_slow", "passed", 0.2),
		rec("fast", "passed", 1.0),
		rec("tiny", "passed", 0.02),
		rec("zero", "passed", 0.1),
	)

	t.Run("slower only", func(t *testing.T) {
		opts := DefaultCompareOptions()
		opts.Perf = true
		c := Compare(a, b, opts)

		require.Len(t, c.Slower, 3)
		assert.Equal(t, "a_slow", c.Slower[0].ID, "sorted by id")
		assert.Equal(t, "b_slow", c.Slower[1].ID)
		assert.Equal(t, "zero", c.Slower[2].ID)
		assert.InDelta(t, 1.5, c.Slower[1].Ratio, 1e-9)
		assert.InDelta(t, 0.5, c.Slower[1].Delta, 1e-9)
		assert.Empty(t, c.Faster)
	})

	t.Run("with faster", func(t *testing.T) {
		opts := DefaultCompareOptions()
		opts.Perf = true
		opts.ShowFaster = true
		c := Compare(a, b, opts)

		require.Len(t, c.Faster, 1)
		assert.Equal(t, Timing{ID: "fast", Old: 2.0, New: 1.0, Ratio: 2.0, Delta: 1.0}, c.Faster[0])
	})
}

func TestCompare_NilSnapshots(t *testing.T) {
	c := Compare(nil, snap(rec("a", "failed", 0)), DefaultCompareOptions())

	assert.Equal(t, []string{"a"}, c.AddedFail)
	assert.Equal(t, 1, c.TotalChanged)
}
