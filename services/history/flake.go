// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"sort"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// FlakeScores scores every test seen in runs by how often its verdict
// flipped.
//
// # Description
//
// For each test id, the outcomes across runs (oldest first) are reduced
// to those in the pass/fail family (passed, failed, xfailed, xpassed).
// The score is the number of adjacent changes divided by the number of
// adjacent pairs. A test seen fewer than twice scores 0.
//
//	passed, passed, passed  -> 0.0
//	passed, failed, passed  -> 1.0
//	passed, passed, failed  -> 0.5
//
// # Outputs
//
//   - map[string]float64: Score in [0,1] per id. Never nil.
func FlakeScores(runs []Run) map[string]float64 {
	sequences := map[string][]snapshot.Outcome{}
	for _, run := range runs {
		for id, raw := range run.Results {
			kind := snapshot.ParseOutcome(raw)
			if !kind.IsVerdict() {
				if _, ok := sequences[id]; !ok {
					sequences[id] = nil
				}
				continue
			}
			sequences[id] = append(sequences[id], kind)
		}
	}

	scores := make(map[string]float64, len(sequences))
	for id, seq := range sequences {
		if len(seq) < 2 {
			scores[id] = 0
			continue
		}
		flips := 0
		for i := 1; i < len(seq); i++ {
			if seq[i] != seq[i-1] {
				flips++
			}
		}
		scores[id] = float64(flips) / float64(len(seq)-1)
	}
	return scores
}

// Durations collects the recorded durations per test id across runs,
// oldest first.
func Durations(runs []Run) map[string][]float64 {
	out := map[string][]float64{}
	for _, run := range runs {
		for id, d := range run.Durations {
			out[id] = append(out[id], d)
		}
	}
	return out
}

// Flaky is a test with its flake score.
type Flaky struct {
	ID    string
	Score float64
}

// Ranked returns the scores at or above minScore, highest first, ties by id.
func Ranked(scores map[string]float64, minScore float64) []Flaky {
	out := make([]Flaky, 0, len(scores))
	for id, s := range scores {
		if s >= minScore {
			out = append(out, Flaky{ID: id, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
