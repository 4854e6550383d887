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
	"sort"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// Defaults for CompareOptions.
const (
	DefaultPerfRatio = 1.3
	DefaultPerfAbs   = 0.05
)

// zeroDurationFloor stands in for a zero denominator when computing
// timing ratios, so a 0s -> 0.5s change still reports a ratio.
const zeroDurationFloor = 1e-9

// CompareOptions configures Compare.
type CompareOptions struct {
	// Perf enables slower test detection.
	Perf bool

	// PerfRatio and PerfAbs must both be met for a timing change to count.
	PerfRatio float64
	PerfAbs   float64

	// ShowFaster also reports tests that got faster by the same margins.
	ShowFaster bool
}

// DefaultCompareOptions returns perf detection disabled with ratio 1.3
// and absolute delta 0.05s.
func DefaultCompareOptions() CompareOptions {
	return CompareOptions{PerfRatio: DefaultPerfRatio, PerfAbs: DefaultPerfAbs}
}

// Removal is a test present only in the older snapshot.
type Removal struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// Timing is a test whose duration changed past the perf thresholds.
// Ratio and Delta are always positive, in the direction of the change.
type Timing struct {
	ID    string  `json:"id"`
	Old   float64 `json:"old"`
	New   float64 `json:"new"`
	Ratio float64 `json:"ratio"`
	Delta float64 `json:"delta"`
}

// Comparison is the full outcome transition matrix between two snapshots.
// Lists are uncapped.
type Comparison struct {
	Regressions      []string  `json:"regressions"`
	Fixes            []string  `json:"fixes"`
	PersistentFail   []string  `json:"persistent_fail"`
	PersistentPass   []string  `json:"persistent_pass"`
	AddedPass        []string  `json:"added_pass"`
	AddedFail        []string  `json:"added_fail"`
	Removed          []Removal `json:"removed"`
	NewXFails        []string  `json:"new_xfails"`
	ResolvedXFails   []string  `json:"resolved_xfails"`
	PersistentXFails []string  `json:"persistent_xfails"`
	XPassed          []string  `json:"xpassed"`
	Slower           []Timing  `json:"slower,omitempty"`
	Faster           []Timing  `json:"faster,omitempty"`
	TotalChanged     int       `json:"total_changed"`
}

// Compare reports how every test moved from snapshot a to snapshot b.
//
// Description:
//
//	Unlike Diff, Compare keeps persistent outcomes, treats every test only
//	in b as added (failing or passing), reports xfail resolution to both
//	passed and xpassed, and never filters or caps. Timing changes are
//	evaluated over the sorted common ids when opts.Perf is set: slower
//	when new > old, new/old >= PerfRatio and new-old >= PerfAbs.
//
//	TotalChanged counts fixes, regressions, added, removed, new xfails
//	and resolved xfails.
//
// Thread Safety:
//
//	Safe for concurrent use.
func Compare(a, b *snapshot.Snapshot, opts CompareOptions) *Comparison {
	ia := snapshot.IndexOf(a)
	ib := snapshot.IndexOf(b)
	c := &Comparison{}

	for _, id := range ia.IDs() {
		old, _ := ia.Get(id)
		cur, ok := ib.Get(id)
		if !ok {
			c.Removed = append(c.Removed, Removal{ID: id, Outcome: old.Outcome})
			continue
		}
		pk, ck := old.Kind(), cur.Kind()

		switch {
		case pk == snapshot.OutcomePassed && ck == snapshot.OutcomeFailed:
			c.Regressions = append(c.Regressions, id)
		case pk == snapshot.OutcomeFailed && ck == snapshot.OutcomePassed:
			c.Fixes = append(c.Fixes, id)
		case pk == snapshot.OutcomeFailed && ck == snapshot.OutcomeFailed:
			c.PersistentFail = append(c.PersistentFail, id)
		case pk == snapshot.OutcomePassed && ck == snapshot.OutcomePassed:
			c.PersistentPass = append(c.PersistentPass, id)
		}

		switch {
		case pk.IsXFailLike() && (ck == snapshot.OutcomePassed || ck.IsXPassLike()):
			c.ResolvedXFails = append(c.ResolvedXFails, id)
		case !pk.IsXFailLike() && ck.IsXFailLike():
			c.NewXFails = append(c.NewXFails, id)
		case pk.IsXFailLike() && ck.IsXFailLike():
			c.PersistentXFails = append(c.PersistentXFails, id)
		}
		if ck.IsXPassLike() {
			c.XPassed = append(c.XPassed, id)
		}
	}

	for _, id := range ib.IDs() {
		if ia.Has(id) {
			continue
		}
		rec, _ := ib.Get(id)
		if rec.Kind() == snapshot.OutcomeFailed {
			c.AddedFail = append(c.AddedFail, id)
		} else {
			c.AddedPass = append(c.AddedPass, id)
		}
		if rec.Kind().IsXFailLike() {
			c.NewXFails = append(c.NewXFails, id)
		}
	}

	if opts.Perf {
		c.Slower, c.Faster = compareTimings(ia, ib, opts)
	}

	c.TotalChanged = len(c.Fixes) + len(c.Regressions) + len(c.AddedPass) + len(c.AddedFail) +
		len(c.Removed) + len(c.NewXFails) + len(c.ResolvedXFails)
	return c
}

func compareTimings(ia, ib *snapshot.Index, opts CompareOptions) (slower, faster []Timing) {
	common := make([]string, 0, ia.Len())
	for _, id := range ia.IDs() {
		if ib.Has(id) {
			common = append(common, id)
		}
	}
	sort.Strings(common)

	for _, id := range common {
		oldRec, _ := ia.Get(id)
		newRec, _ := ib.Get(id)
		if !oldRec.ValidDuration() || !newRec.ValidDuration() {
			continue
		}
		o, n := oldRec.Duration, newRec.Duration

		switch {
		case n > o && n/floor(o) >= opts.PerfRatio && n-o >= opts.PerfAbs:
			slower = append(slower, Timing{ID: id, Old: o, New: n, Ratio: n / floor(o), Delta: n - o})
		case opts.ShowFaster && o > n && o/floor(n) >= opts.PerfRatio && o-n >= opts.PerfAbs:
			faster = append(faster, Timing{ID: id, Old: o, New: n, Ratio: o / floor(n), Delta: o - n})
		}
	}
	return slower, faster
}

func floor(d float64) float64 {
	if d == 0 {
		return zeroDurationFloor
	}
	return d
}
