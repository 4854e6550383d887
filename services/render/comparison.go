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
	"strings"

	"github.com/AleutianAI/snapdiff/pkg/ux"
	"github.com/AleutianAI/snapdiff/services/diff"
)

// persistentPassPreview is how many persistent passes are listed
// without --all.
const persistentPassPreview = 10

// ComparisonOptions controls Comparison output.
type ComparisonOptions struct {
	// All lists every persistent pass.
	All bool

	// FullIDs prints complete test ids instead of short names.
	FullIDs bool

	// Perf, PerfRatio, PerfAbs and ShowFaster mirror the thresholds the
	// comparison was computed with; they drive the timing headings.
	Perf       bool
	PerfRatio  float64
	PerfAbs    float64
	ShowFaster bool
}

// ComparisonOptionsFrom copies the perf settings of opts.
func ComparisonOptionsFrom(opts diff.CompareOptions) ComparisonOptions {
	return ComparisonOptions{
		Perf:       opts.Perf,
		PerfRatio:  opts.PerfRatio,
		PerfAbs:    opts.PerfAbs,
		ShowFaster: opts.ShowFaster,
	}
}

// Comparison prints the offline comparison of snapshot a to snapshot b.
func (p *Printer) Comparison(a, b string, c *diff.Comparison, opts ComparisonOptions) {
	removedIDs := make([]string, len(c.Removed))
	for i, r := range c.Removed {
		removedIDs[i] = r.ID
	}
	names := newIDNamer(opts.FullIDs,
		c.Regressions, c.Fixes, c.PersistentFail, c.PersistentPass,
		c.AddedPass, c.AddedFail, removedIDs, c.NewXFails, c.ResolvedXFails,
	)

	header := fmt.Sprintf("SNAPSHOT DIFF %s -> %s", a, b)
	p.raw(p.theme.Heading(ux.ColorCyan, header))
	p.line(ux.ColorCyan, "%s", strings.Repeat("-", len([]rune(header))))

	section := func(title string, ids []string, c ux.Color, prefix string) {
		labels := make([]string, len(ids))
		for i, id := range ids {
			labels[i] = names.name(id)
		}
		p.section(title, labels, c, prefix)
	}

	section("Regressions (passed→failed)", c.Regressions, ux.ColorRed, "REGRESSED")
	section("Added Failing Tests", c.AddedFail, ux.ColorRed, "ADDED FAIL")
	section("New XFails", c.NewXFails, ux.ColorYellow, "NEW XFAIL")
	section("Fixes (failed→passed)", c.Fixes, ux.ColorGreen, "FIXED")
	section("Resolved XFails", c.ResolvedXFails, ux.ColorGreen, "RESOLVED XFAIL")
	section("Added Passing Tests", c.AddedPass, ux.ColorGreen, "ADDED PASS")

	removed := make([]string, len(c.Removed))
	for i, r := range c.Removed {
		removed[i] = fmt.Sprintf("%s (%s)", names.name(r.ID), r.Outcome)
	}
	p.section("Removed Tests", removed, ux.ColorYellow, "REMOVED")

	section("Persistent Failures", c.PersistentFail, ux.ColorYellow, "PERSIST FAIL")
	section("Persistent XFails", c.PersistentXFails, ux.ColorYellow, "PERSIST XFAIL")
	section("XPASS (unexpected passes)", c.XPassed, ux.ColorGreen, "XPASS")

	if total := len(c.PersistentPass); total > 0 {
		limit := total
		showing := "all"
		if !opts.All {
			limit = min(persistentPassPreview, total)
			showing = fmt.Sprintf("first %d", limit)
		}
		p.line(ux.ColorCyan, "Total persistent passes: %d (showing %s)", total, showing)
		for _, id := range c.PersistentPass[:limit] {
			p.line(ux.ColorCyan, "  PERSIST PASS: %s", names.name(id))
		}
		if !opts.All && total > limit {
			p.line(ux.ColorCyan, "  … (%d more passes suppressed; use --all to show)", total-limit)
		}
	} else {
		p.line(ux.ColorCyan, "Total persistent passes: 0")
	}

	p.raw("")
	if opts.Perf {
		p.timings(c, opts, names)
	}
	p.summaryMetrics(c, opts.Perf)
}

// section prints a titled, capped list. Empty lists print nothing.
func (p *Printer) section(title string, labels []string, c ux.Color, prefix string) {
	if len(labels) == 0 {
		return
	}
	p.line(c, "%s: %d", title, len(labels))
	for _, label := range labels[:min(SectionLimit, len(labels))] {
		p.line(c, "  %s: %s", prefix, label)
	}
	if len(labels) > SectionLimit {
		p.line(c, "  … (%d more)", len(labels)-SectionLimit)
	}
}

func (p *Printer) timings(c *diff.Comparison, opts ComparisonOptions, names *idNamer) {
	ratio := pyFloat(opts.PerfRatio)
	if len(c.Slower) > 0 {
		p.line(ux.ColorYellow, "Slower Tests: %d (ratio>=%s & +%.3fs)", len(c.Slower), ratio, opts.PerfAbs)
		for _, t := range c.Slower[:min(SectionLimit, len(c.Slower))] {
			p.line(ux.ColorYellow, "  SLOWER: %s +%.3fs x%.2f (%.3fs -> %.3fs)", names.name(t.ID), t.Delta, t.Ratio, t.Old, t.New)
		}
		if len(c.Slower) > SectionLimit {
			p.line(ux.ColorYellow, "  … (%d more)", len(c.Slower)-SectionLimit)
		}
	}
	if opts.ShowFaster && len(c.Faster) > 0 {
		p.line(ux.ColorGreen, "Faster Tests: %d (ratio>=%s & -%.3fs)", len(c.Faster), ratio, opts.PerfAbs)
		for _, t := range c.Faster[:min(SectionLimit, len(c.Faster))] {
			p.line(ux.ColorGreen, "  FASTER: %s -%.3fs x%.2f (%.3fs -> %.3fs)", names.name(t.ID), t.Delta, t.Ratio, t.Old, t.New)
		}
		if len(c.Faster) > SectionLimit {
			p.line(ux.ColorGreen, "  … (%d more)", len(c.Faster)-SectionLimit)
		}
	}
	if len(c.Slower) == 0 && (len(c.Faster) == 0 || !opts.ShowFaster) {
		p.line(ux.ColorYellow, "Slower Tests: 0 (no test exceeded ratio>=%s and +%.3fs)", ratio, opts.PerfAbs)
	}
}

type metric struct {
	name  string
	value int
}

func (p *Printer) summaryMetrics(c *diff.Comparison, perf bool) {
	metrics := []metric{
		{"new_pass", len(c.AddedPass)},
		{"new_fail", len(c.AddedFail)},
		{"fixes", len(c.Fixes)},
		{"regressions", len(c.Regressions)},
		{"removed", len(c.Removed)},
		{"new_xfails", len(c.NewXFails)},
		{"resolved_xfails", len(c.ResolvedXFails)},
		{"persistent_xfails", len(c.PersistentXFails)},
		{"xpassed", len(c.XPassed)},
		{"persistent_fail", len(c.PersistentFail)},
		{"persistent_pass", len(c.PersistentPass)},
	}
	if perf {
		metrics = append(metrics, metric{"slower", len(c.Slower)})
	}
	metrics = append(metrics, metric{"total_changed", c.TotalChanged})

	width := 0
	for _, m := range metrics {
		width = max(width, len(m.name))
	}

	p.raw(p.theme.Bold("Summary Metrics:"))
	for _, m := range metrics {
		value := fmt.Sprint(m.value)
		if m.value != 0 {
			value = p.theme.Paint(metricColor(m.name), value)
		}
		p.raw(fmt.Sprintf("  %-*s : %s", width, m.name, value))
	}
}

func metricColor(name string) ux.Color {
	switch name {
	case "new_fail", "regressions":
		return ux.ColorRed
	case "fixes", "new_pass", "resolved_xfails", "xpassed":
		return ux.ColorGreen
	case "new_xfails", "persistent_fail", "persistent_xfails", "slower":
		return ux.ColorYellow
	default:
		return ux.ColorCyan
	}
}
