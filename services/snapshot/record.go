// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot defines point-in-time test suite snapshots and the
// lookup index the diff engine builds from them.
//
// A snapshot is an ordered list of per-test records:
//
//	{"version":1,"created_at":"2025-06-01T12:00:00Z","collected":3,
//	 "tests":[{"id":"pkg::TestA","outcome":"passed","duration":0.012}]}
//
// Records keep their raw outcome string; Outcome classifies it.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SnapshotVersion is the newest schema version this package reads and
// the version it writes.
const SnapshotVersion = 1

// CreatedAtLayout is the UTC timestamp layout of Snapshot.CreatedAt.
const CreatedAtLayout = "2006-01-02T15:04:05Z"

// -----------------------------------------------------------------------------
// TestRecord
// -----------------------------------------------------------------------------

// TestRecord is the observation of one test in one run.
type TestRecord struct {
	// ID uniquely identifies the test within a snapshot, e.g.
	// "tests/test_perf.py::test_fast" or "github.com/x/y::TestZ".
	ID string `json:"id"`

	// Outcome is the raw outcome string as recorded.
	Outcome string `json:"outcome"`

	// Duration is the wall time in seconds.
	Duration float64 `json:"duration"`

	// Sig is a short failure signature, set only for failed tests.
	Sig string `json:"sig,omitempty"`

	// DurationMalformed is set when the stored duration could not be
	// parsed. Such records never take part in slowness detection.
	DurationMalformed bool `json:"-"`
}

// Kind classifies the raw outcome.
func (r TestRecord) Kind() Outcome {
	return ParseOutcome(r.Outcome)
}

// ValidDuration reports whether Duration is usable for timing comparisons:
// well-formed, finite and non-negative.
func (r TestRecord) ValidDuration() bool {
	if r.DurationMalformed {
		return false
	}
	d := r.Duration
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 0
}

type recordJSON struct {
	ID       string          `json:"id"`
	Outcome  string          `json:"outcome"`
	Duration json.RawMessage `json:"duration"`
	Sig      string          `json:"sig,omitempty"`
}

// UnmarshalJSON decodes a record, tolerating durations stored as numeric
// strings or null. Any other duration decodes as 0 with DurationMalformed.
func (r *TestRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Outcome = raw.Outcome
	r.Sig = raw.Sig
	r.Duration, r.DurationMalformed = parseDuration(raw.Duration)
	return nil
}

// MarshalJSON encodes the record with the duration rounded to 6 decimals.
func (r TestRecord) MarshalJSON() ([]byte, error) {
	d := r.Duration
	if !r.ValidDuration() {
		d = 0
	}
	return json.Marshal(struct {
		ID       string  `json:"id"`
		Outcome  string  `json:"outcome"`
		Duration float64 `json:"duration"`
		Sig      string  `json:"sig,omitempty"`
	}{
		ID:       r.ID,
		Outcome:  r.Outcome,
		Duration: Round(d, 6),
		Sig:      r.Sig,
	})
}

func parseDuration(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, true
		}
		text = strings.TrimSpace(s)
	}

	d, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, true
	}
	return d, false
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// Snapshot is the recorded result of one test suite execution.
type Snapshot struct {
	Version   int          `json:"version"`
	CreatedAt string       `json:"created_at"`
	Collected int          `json:"collected"`
	Tests     []TestRecord `json:"tests"`
}

// New builds a current-version snapshot stamped with the present UTC time.
//
// Inputs:
//
//	records - Test records in execution order. Retained, not copied.
//	collected - Number of tests the runner collected. Values below zero
//	  are replaced by len(records).
func New(records []TestRecord, collected int) *Snapshot {
	if collected < 0 {
		collected = len(records)
	}
	return &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: time.Now().UTC().Format(CreatedAtLayout),
		Collected: collected,
		Tests:     records,
	}
}

// Len returns the number of records, treating a nil snapshot as empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tests)
}

// Created parses CreatedAt. The zero time is returned when it is unset
// or not in CreatedAtLayout.
func (s *Snapshot) Created() time.Time {
	if s == nil {
		return time.Time{}
	}
	t, err := time.Parse(CreatedAtLayout, s.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the schema-level constraints a decoded snapshot must meet.
func (s *Snapshot) Validate() error {
	if s.Version > SnapshotVersion {
		return fmt.Errorf("%w: version %d (max %d)", ErrUnsupportedVersion, s.Version, SnapshotVersion)
	}
	for i, rec := range s.Tests {
		if rec.ID == "" {
			return fmt.Errorf("%w: test record %d has an empty id", ErrInvalidSnapshot, i)
		}
	}
	return nil
}
