// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"fmt"

	"github.com/AleutianAI/snapdiff/pkg/ux"
	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
)

// ReportOptions controls Report output.
type ReportOptions struct {
	// FullIDs prints complete test ids instead of short names.
	FullIDs bool
}

// Report prints the engine report bucket by bucket. Buckets are already
// capped by the engine; a section notes how many entries were dropped.
func (p *Printer) Report(r *diff.Report, opts ReportOptions) {
	ids := func(changes []diff.Change) []string {
		out := make([]string, len(changes))
		for i, c := range changes {
			out[i] = c.ID
		}
		return out
	}
	names := newIDNamer(opts.FullIDs,
		ids(r.NewFailures), ids(r.FixedFailures), ids(r.RemovedFailures), ids(r.NewPasses),
		ids(r.NewXFails), ids(r.ResolvedXFails), ids(r.XPassed),
	)
	s := r.Summary

	changes := func(title string, entries []diff.Change, total int, c ux.Color, prefix string) {
		labels := make([]string, len(entries))
		for i, e := range entries {
			labels[i] = names.name(e.ID) + changeExtra(e)
		}
		p.cappedSection(title, labels, total, c, prefix)
	}

	changes("New Failures", r.NewFailures, s.NewFailures, ux.ColorRed, "NEW FAIL")

	budgets := make([]string, len(r.BudgetViolations))
	for i, b := range r.BudgetViolations {
		budgets[i] = fmt.Sprintf("%s p95 %.3fs > budget %.3fs", names.name(b.ID), b.ObservedP95, b.BudgetP95)
	}
	p.cappedSection("Budget Violations", budgets, s.Budget, ux.ColorRed, "BUDGET")

	slower := make([]string, len(r.SlowerTests))
	for i, t := range r.SlowerTests {
		slower[i] = fmt.Sprintf("%s +%.3fs x%.2f (%.3fs -> %.3fs)", names.name(t.ID), t.AbsDelta, t.Ratio, t.Prev, t.Curr)
	}
	p.cappedSection("Slower Tests", slower, s.Slower, ux.ColorYellow, "SLOWER")

	flaky := make([]string, len(r.FlakySuspects))
	for i, f := range r.FlakySuspects {
		flaky[i] = fmt.Sprintf("%s (%s -> %s, score %.2f)", names.name(f.ID), f.From, f.To, f.FlakeScore)
	}
	p.cappedSection("Flaky Suspects", flaky, s.Flaky, ux.ColorYellow, "FLAKY")

	changes("New XFails", r.NewXFails, s.NewXFails, ux.ColorYellow, "NEW XFAIL")
	changes("Removed Failures", r.RemovedFailures, s.Removed, ux.ColorYellow, "REMOVED")
	changes("Fixed Failures", r.FixedFailures, s.Fixed, ux.ColorGreen, "FIXED")
	changes("Resolved XFails", r.ResolvedXFails, s.ResolvedXFails, ux.ColorGreen, "RESOLVED XFAIL")
	changes("XPASS (unexpected passes)", r.XPassed, s.XPassed, ux.ColorGreen, "XPASS")
	changes("New Passes", r.NewPasses, s.NewPasses, ux.ColorGreen, "NEW PASS")

	p.line(ux.ColorCyan, "Persistent: failures=%d passes=%d xfails=%d",
		s.PersistentFailures, s.PersistentPasses, s.PersistentXFails)
	p.raw(p.theme.Bold(fmt.Sprintf("Impact score: %d", r.ImpactScore)))
}

// cappedSection is section for engine buckets, whose true size is total.
func (p *Printer) cappedSection(title string, labels []string, total int, c ux.Color, prefix string) {
	if total == 0 {
		return
	}
	shown := min(SectionLimit, len(labels))
	p.line(c, "%s: %d", title, total)
	for _, label := range labels[:shown] {
		p.line(c, "  %s: %s", prefix, label)
	}
	if total > shown {
		p.line(c, "  … (%d more)", total-shown)
	}
}

func changeExtra(c diff.Change) string {
	extra := ""
	if c.From != "" || c.To != "" {
		extra = fmt.Sprintf(" (%s -> %s)", c.From, c.To)
	}
	if c.Sig != "" {
		extra += " sig:" + c.Sig
	}
	return extra
}

// Decision prints the gate status followed by the console summary line.
func (p *Printer) Decision(d *gate.Decision) {
	switch {
	case d.Skipped && d.Pass:
		p.raw(fmt.Sprintf("%s gate skipped: %s", p.theme.Icon(ux.IconWarning), d.Reason))
	case d.Pass:
		p.raw(fmt.Sprintf("%s gate passed (fail on %s)", p.theme.Icon(ux.IconSuccess), d.FailOn))
	default:
		p.raw(fmt.Sprintf("%s gate failed: %s", p.theme.Icon(ux.IconError), d.Reason))
	}
	if !d.Skipped {
		p.raw(d.Summary)
	}
}
