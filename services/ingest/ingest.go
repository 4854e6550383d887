// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest converts test runner output into snapshots.
//
// Two formats are supported: the event stream of `go test -json`
// (test2json) and JUnit XML as written by most CI runners. Both produce
// records with ids of the form "<suite>::<test>" so that the file-style
// id normalization modes apply unchanged.
package ingest

import (
	"errors"
	"log/slog"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// ErrNoTests is returned when the input holds no test results.
var ErrNoTests = errors.New("no test results found")

// Options configures ingestion.
type Options struct {
	// Normalize rewrites ids as they are recorded.
	Normalize snapshot.NormalizeMode

	// Logger receives warnings about skipped input. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// collector accumulates records in first-seen order; a repeated id
// overwrites its earlier record in place.
type collector struct {
	mode    snapshot.NormalizeMode
	records []snapshot.TestRecord
	pos     map[string]int
}

func newCollector(mode snapshot.NormalizeMode) *collector {
	return &collector{mode: mode, pos: make(map[string]int)}
}

func (c *collector) add(r snapshot.TestRecord) {
	r.ID = snapshot.NormalizeID(r.ID, c.mode)
	r.Outcome = snapshot.NormalizeRawOutcome(r.Outcome)
	if i, ok := c.pos[r.ID]; ok {
		c.records[i] = r
		return
	}
	c.pos[r.ID] = len(c.records)
	c.records = append(c.records, r)
}

func (c *collector) snapshot() (*snapshot.Snapshot, error) {
	if len(c.records) == 0 {
		return nil, ErrNoTests
	}
	return snapshot.New(c.records, len(c.records)), nil
}
