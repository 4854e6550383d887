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
	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// ShowOptions controls Show output.
type ShowOptions struct {
	// Full lists every entry instead of the first few.
	Full bool

	// FullIDs prints complete ids instead of "file::name".
	FullIDs bool

	// NoTrunc disables middle truncation of long ids.
	NoTrunc bool

	// MaxIDLen is the truncation width. Values below 10 mean 10.
	MaxIDLen int

	// TopSlowest is the number of slowest tests listed.
	TopSlowest int
}

// DefaultShowOptions returns ids truncated at 90 runes and the 10
// slowest tests.
func DefaultShowOptions() ShowOptions {
	return ShowOptions{MaxIDLen: 90, TopSlowest: 10}
}

// Show prints a single snapshot: outcome counts, failure, xfail, xpass
// and pass listings, and the slowest tests.
func (p *Printer) Show(name string, s *snapshot.Snapshot, opts ShowOptions) {
	sum := snapshot.Summarize(s, opts.TopSlowest)

	p.raw(p.theme.Heading(ux.ColorCyan, fmt.Sprintf("SNAPSHOT %s (total %d)", name, sum.Total)))
	p.raw(fmt.Sprintf("  passed=%d failed=%d xfailed=%d xpassed=%d skipped=%d other=%d",
		sum.Counts[snapshot.OutcomePassed],
		sum.Counts[snapshot.OutcomeFailed],
		sum.Counts[snapshot.OutcomeXFailed],
		sum.Counts[snapshot.OutcomeXPassed],
		sum.Counts[snapshot.OutcomeSkipped],
		sum.Counts[snapshot.OutcomeOther],
	))

	display := func(id string) string {
		if !opts.FullIDs {
			id = ShortenPath(id)
		}
		if !opts.NoTrunc {
			id = Truncate(id, opts.MaxIDLen)
		}
		return id
	}

	block := func(title string, records []snapshot.TestRecord, c ux.Color, limit int) {
		if len(records) == 0 {
			return
		}
		p.line(c, "%s: %d", title, len(records))
		shown := records
		if !opts.Full && len(records) > limit {
			shown = records[:limit]
		}
		for _, r := range shown {
			p.line(c, "  - %s", display(r.ID))
		}
		if !opts.Full && len(records) > limit {
			p.line(c, "  … (%d more; use --full)", len(records)-limit)
		}
	}

	block("Failures", sum.ByKind[snapshot.OutcomeFailed], ux.ColorRed, 10)
	block("XFails", sum.ByKind[snapshot.OutcomeXFailed], ux.ColorYellow, 10)
	block("XPASS", sum.ByKind[snapshot.OutcomeXPassed], ux.ColorGreen, 10)
	block("Passes", sum.ByKind[snapshot.OutcomePassed], ux.ColorGreen, 20)

	if len(sum.Slowest) > 0 {
		p.line(ux.ColorCyan, "Slowest %d tests:", len(sum.Slowest))
		for _, r := range sum.Slowest {
			p.line(ux.ColorCyan, "  %.4fs %s", r.Duration, display(r.ID))
		}
	}
}
