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
	"sort"
)

// Summary is a per-outcome breakdown of a single snapshot.
type Summary struct {
	Total     int
	Counts    map[Outcome]int
	ByKind    map[Outcome][]TestRecord
	Slowest   []TestRecord
	Created   string
	Collected int
}

// Summarize groups the records of s by outcome and picks the topN slowest
// records with a valid duration. Records keep snapshot order within a
// group; ties in duration keep snapshot order too.
func Summarize(s *Snapshot, topN int) Summary {
	sum := Summary{
		Counts: make(map[Outcome]int, len(Outcomes())),
		ByKind: make(map[Outcome][]TestRecord, len(Outcomes())),
	}
	if s == nil {
		return sum
	}
	sum.Total = len(s.Tests)
	sum.Created = s.CreatedAt
	sum.Collected = s.Collected

	timed := make([]TestRecord, 0, len(s.Tests))
	for _, rec := range s.Tests {
		kind := rec.Kind()
		sum.Counts[kind]++
		sum.ByKind[kind] = append(sum.ByKind[kind], rec)
		if rec.ValidDuration() {
			timed = append(timed, rec)
		}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].Duration > timed[j].Duration
	})
	if topN < 0 {
		topN = 0
	}
	if topN < len(timed) {
		timed = timed[:topN]
	}
	sum.Slowest = timed
	return sum
}
