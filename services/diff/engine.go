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
	"math"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// transition is the mutually exclusive classification of an id present
// in both snapshots. Flaky, slower and xfail buckets are overlays on top.
type transition int

const (
	transitionNone transition = iota
	transitionNewFailure
	transitionFixed
	transitionPersistentFailure
	transitionPersistentPass
)

func classifyTransition(prev, cur snapshot.Outcome) transition {
	switch {
	case cur == snapshot.OutcomeFailed && prev != snapshot.OutcomeFailed && !prev.IsXFailLike():
		return transitionNewFailure
	case prev == snapshot.OutcomeFailed && cur != snapshot.OutcomeFailed && !cur.IsXFailLike():
		return transitionFixed
	case prev == snapshot.OutcomeFailed && cur == snapshot.OutcomeFailed:
		return transitionPersistentFailure
	case prev == snapshot.OutcomePassed && cur == snapshot.OutcomePassed:
		return transitionPersistentPass
	default:
		return transitionNone
	}
}

// Diff classifies every test of baseline and current into report buckets.
//
// Description:
//
//	Walks the current snapshot's ids in first-seen order, then the
//	baseline's, and assigns each id to the buckets it qualifies for:
//
//	  new test, failed             -> new_failures
//	  new test, passed             -> new_passes
//	  new test, xfail              -> new_xfails
//	  failed, was not failed/xfail -> new_failures
//	  xfail, was not xfail         -> new_xfails
//	  passed, was xfail            -> resolved_xfails
//	  xfail, was xfail             -> persistent_xfails
//	  xpass (existing test)        -> xpassed
//	  outcome changed in the pass/fail family -> flaky_suspects
//	  duration >= max(prev*ratio, prev+abs)   -> slower_tests
//	  removed test, was failed     -> removed_failures, vanished_failures
//	  was failed, not failed/xfail -> fixed_failures, vanished_failures
//
//	When flake scores are supplied and FlakeThreshold < 1.0, entries with
//	a score at or above the threshold are dropped from new_failures,
//	slower_tests and budget_violations. Each bucket is then capped at
//	BucketCap entries; Summary keeps the uncapped sizes.
//
//	ImpactScore = w.NewFailure*n_new + w.Budget*n_budget + w.Slower*n_slower
//	with defaults 3/2/1. It is a severity heuristic for sorting and gating,
//	not a probability.
//
// Inputs:
//
//	baseline - Previous snapshot. Nil is treated as empty, which makes
//	  every current test new. Callers that want "no baseline, no gate"
//	  must check for nil themselves.
//	current - Snapshot under test. Nil is treated as empty.
//	opts - Thresholds, flake scores and budget violations.
//
// Outputs:
//
//	*Report - Never nil. Buckets are non-nil slices.
//
// Thread Safety:
//
//	Safe for concurrent use. Inputs are read, never retained or modified.
func Diff(baseline, current *snapshot.Snapshot, opts Options) *Report {
	opts = opts.normalized()
	base := snapshot.IndexOf(baseline)
	cur := snapshot.IndexOf(current)

	r := newReport()
	var persistentFailures, persistentPasses int

	for _, id := range cur.IDs() {
		c, _ := cur.Get(id)
		p, inBase := base.Get(id)
		ck := c.Kind()

		if !inBase {
			switch {
			case ck == snapshot.OutcomeFailed:
				r.NewFailures = append(r.NewFailures, Change{ID: id, Outcome: c.Outcome, Sig: c.Sig})
			case ck == snapshot.OutcomePassed:
				r.NewPasses = append(r.NewPasses, Change{ID: id, Outcome: c.Outcome})
			case ck.IsXFailLike():
				r.NewXFails = append(r.NewXFails, Change{ID: id, Outcome: c.Outcome})
			}
			continue
		}

		pk := p.Kind()
		switch classifyTransition(pk, ck) {
		case transitionNewFailure:
			r.NewFailures = append(r.NewFailures, Change{ID: id, From: p.Outcome, To: c.Outcome, Sig: c.Sig})
		case transitionPersistentFailure:
			persistentFailures++
		case transitionPersistentPass:
			persistentPasses++
		}

		switch {
		case ck.IsXFailLike() && !pk.IsXFailLike():
			r.NewXFails = append(r.NewXFails, Change{ID: id, From: p.Outcome, To: c.Outcome})
		case ck.IsXFailLike() && pk.IsXFailLike():
			r.PersistentXFails = append(r.PersistentXFails, Change{ID: id, Outcome: c.Outcome})
		case pk.IsXFailLike() && ck == snapshot.OutcomePassed:
			r.ResolvedXFails = append(r.ResolvedXFails, Change{ID: id, From: p.Outcome, To: c.Outcome})
		}

		if ck.IsXPassLike() {
			r.XPassed = append(r.XPassed, Change{ID: id, From: p.Outcome, To: c.Outcome})
		}

		if pk != ck && (pk.IsVerdict() || ck.IsVerdict()) {
			r.FlakySuspects = append(r.FlakySuspects, FlakySuspect{
				ID:         id,
				From:       p.Outcome,
				To:         c.Outcome,
				FlakeScore: opts.flakeScore(id),
			})
		}

		if slow, ok := slowdown(id, p, c, opts); ok {
			r.SlowerTests = append(r.SlowerTests, slow)
		}
	}

	for _, id := range base.IDs() {
		p, _ := base.Get(id)
		c, inCur := cur.Get(id)

		if !inCur {
			if p.Kind() == snapshot.OutcomeFailed {
				entry := Change{ID: id, Outcome: p.Outcome}
				r.RemovedFailures = append(r.RemovedFailures, entry)
				r.VanishedFailures = append(r.VanishedFailures, entry)
			}
			continue
		}

		if classifyTransition(p.Kind(), c.Kind()) == transitionFixed {
			entry := Change{ID: id, From: p.Outcome, To: c.Outcome}
			r.FixedFailures = append(r.FixedFailures, entry)
			r.VanishedFailures = append(r.VanishedFailures, entry)
		}
	}

	r.BudgetViolations = append(r.BudgetViolations, opts.Budgets...)

	if opts.filtering() {
		keep := func(id string) bool { return opts.flakeScore(id) < opts.FlakeThreshold }
		r.NewFailures = filter(r.NewFailures, func(e Change) bool { return keep(e.ID) })
		r.SlowerTests = filter(r.SlowerTests, func(e SlowerTest) bool { return keep(e.ID) })
		r.BudgetViolations = filter(r.BudgetViolations, func(e BudgetViolation) bool { return keep(e.ID) })
	}

	r.Summary = Summary{
		NewFailures:        len(r.NewFailures),
		NewPasses:          len(r.NewPasses),
		Vanished:           len(r.VanishedFailures),
		Fixed:              len(r.FixedFailures),
		Removed:            len(r.RemovedFailures),
		NewXFails:          len(r.NewXFails),
		ResolvedXFails:     len(r.ResolvedXFails),
		PersistentXFails:   len(r.PersistentXFails),
		XPassed:            len(r.XPassed),
		Flaky:              len(r.FlakySuspects),
		Slower:             len(r.SlowerTests),
		Budget:             len(r.BudgetViolations),
		PersistentFailures: persistentFailures,
		PersistentPasses:   persistentPasses,
	}
	r.ImpactScore = opts.Weights.NewFailure*r.Summary.NewFailures +
		opts.Weights.Budget*r.Summary.Budget +
		opts.Weights.Slower*r.Summary.Slower

	r.capBuckets(BucketCap)
	return r
}

// slowdown reports whether c is slower than p under opts. Only pairs with
// two valid durations and a strictly positive baseline are considered.
func slowdown(id string, p, c snapshot.TestRecord, opts Options) (SlowerTest, bool) {
	if !p.ValidDuration() || !c.ValidDuration() {
		return SlowerTest{}, false
	}
	d0, d1 := p.Duration, c.Duration
	if d0 <= 0 {
		return SlowerTest{}, false
	}
	if d1 < math.Max(d0*opts.SlowerRatio, d0+opts.SlowerAbs) {
		return SlowerTest{}, false
	}
	return SlowerTest{
		ID:       id,
		Prev:     snapshot.Round(d0, 6),
		Curr:     snapshot.Round(d1, 6),
		Ratio:    snapshot.Round(d1/d0, 3),
		AbsDelta: snapshot.Round(d1-d0, 6),
	}, true
}

func newReport() *Report {
	return &Report{
		Version:          AlgorithmVersion,
		NewFailures:      []Change{},
		NewPasses:        []Change{},
		VanishedFailures: []Change{},
		FixedFailures:    []Change{},
		RemovedFailures:  []Change{},
		NewXFails:        []Change{},
		ResolvedXFails:   []Change{},
		PersistentXFails: []Change{},
		XPassed:          []Change{},
		FlakySuspects:    []FlakySuspect{},
		SlowerTests:      []SlowerTest{},
		BudgetViolations: []BudgetViolation{},
	}
}

func (r *Report) capBuckets(n int) {
	r.NewFailures = capSlice(r.NewFailures, n)
	r.NewPasses = capSlice(r.NewPasses, n)
	r.VanishedFailures = capSlice(r.VanishedFailures, n)
	r.FixedFailures = capSlice(r.FixedFailures, n)
	r.RemovedFailures = capSlice(r.RemovedFailures, n)
	r.NewXFails = capSlice(r.NewXFails, n)
	r.ResolvedXFails = capSlice(r.ResolvedXFails, n)
	r.PersistentXFails = capSlice(r.PersistentXFails, n)
	r.XPassed = capSlice(r.XPassed, n)
	r.FlakySuspects = capSlice(r.FlakySuspects, n)
	r.SlowerTests = capSlice(r.SlowerTests, n)
	r.BudgetViolations = capSlice(r.BudgetViolations, n)
}

func capSlice[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n:n]
}

func filter[T any](s []T, keep func(T) bool) []T {
	out := s[:0]
	for _, v := range s {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
