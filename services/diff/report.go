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

// Change is a test entry in an outcome bucket.
//
// Tests that only exist on one side carry Outcome; tests present in both
// snapshots carry From and To.
type Change struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Sig     string `json:"sig,omitempty"`
}

// FlakySuspect is a test whose outcome changed between pass/fail-family
// states.
type FlakySuspect struct {
	ID         string  `json:"id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	FlakeScore float64 `json:"flake_score"`
}

// SlowerTest is a test whose duration crossed both slowdown thresholds.
type SlowerTest struct {
	ID       string  `json:"id"`
	Prev     float64 `json:"prev"`
	Curr     float64 `json:"curr"`
	Ratio    float64 `json:"ratio"`
	AbsDelta float64 `json:"abs_delta"`
}

// BudgetViolation is a test whose observed p95 duration exceeded its
// budget. Diff only uses ID; the rest passes through.
type BudgetViolation struct {
	ID          string  `json:"id"`
	BudgetP95   float64 `json:"budget_p95"`
	ObservedP95 float64 `json:"observed_p95"`
	Samples     int     `json:"samples,omitempty"`
}

// Summary holds the bucket sizes after flake filtering and before capping.
type Summary struct {
	NewFailures        int `json:"n_new"`
	NewPasses          int `json:"n_new_passes"`
	Vanished           int `json:"n_vanished"`
	Fixed              int `json:"n_fixed"`
	Removed            int `json:"n_removed"`
	NewXFails          int `json:"n_new_xfails"`
	ResolvedXFails     int `json:"n_resolved_xfails"`
	PersistentXFails   int `json:"n_persistent_xfails"`
	XPassed            int `json:"n_xpassed"`
	Flaky              int `json:"n_flaky"`
	Slower             int `json:"n_slower"`
	Budget             int `json:"n_budget"`
	PersistentFailures int `json:"n_persistent_failures"`
	PersistentPasses   int `json:"n_persistent_passes"`
}

// Counts returns the summary as a name to count map keyed by the JSON
// field names.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"n_new":                 s.NewFailures,
		"n_new_passes":          s.NewPasses,
		"n_vanished":            s.Vanished,
		"n_fixed":               s.Fixed,
		"n_removed":             s.Removed,
		"n_new_xfails":          s.NewXFails,
		"n_resolved_xfails":     s.ResolvedXFails,
		"n_persistent_xfails":   s.PersistentXFails,
		"n_xpassed":             s.XPassed,
		"n_flaky":               s.Flaky,
		"n_slower":              s.Slower,
		"n_budget":              s.Budget,
		"n_persistent_failures": s.PersistentFailures,
		"n_persistent_passes":   s.PersistentPasses,
	}
}

// Report is the classified difference between two snapshots.
//
// Every bucket holds at most BucketCap entries in classification order.
// Summary counts are not capped and may exceed BucketCap.
type Report struct {
	Version          int               `json:"version"`
	NewFailures      []Change          `json:"new_failures"`
	NewPasses        []Change          `json:"new_passes"`
	VanishedFailures []Change          `json:"vanished_failures"`
	FixedFailures    []Change          `json:"fixed_failures"`
	RemovedFailures  []Change          `json:"removed_failures"`
	NewXFails        []Change          `json:"new_xfails"`
	ResolvedXFails   []Change          `json:"resolved_xfails"`
	PersistentXFails []Change          `json:"persistent_xfails"`
	XPassed          []Change          `json:"xpassed"`
	FlakySuspects    []FlakySuspect    `json:"flaky_suspects"`
	SlowerTests      []SlowerTest      `json:"slower_tests"`
	BudgetViolations []BudgetViolation `json:"budget_violations"`
	Summary          Summary           `json:"summary"`
	ImpactScore      int               `json:"impact_score"`
}

// HasChanges reports whether any change bucket is non-empty. Persistent
// outcomes are not changes.
func (r *Report) HasChanges() bool {
	s := r.Summary
	return s.NewFailures+s.NewPasses+s.Vanished+s.NewXFails+s.ResolvedXFails+
		s.XPassed+s.Flaky+s.Slower+s.Budget > 0
}
