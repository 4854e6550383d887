// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history maintains the rolling run history used to score flaky
// tests.
//
// Every recorded run appends one JSON line to a history file:
//
//	{"run_id":"6f1c...","created_at":"2025-06-01T12:00:00Z",
//	 "results":{"pkg::TestA":"passed"},"durations":{"pkg::TestA":0.12}}
//
// Only the newest N lines are kept (default 20). FlakeScores turns the
// retained runs into a per-test score in [0,1] for the diff engine.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// DefaultMaxRuns is the number of runs retained when no limit is given.
const DefaultMaxRuns = 20

// Run is one line of the history file.
type Run struct {
	RunID     string             `json:"run_id"`
	CreatedAt string             `json:"created_at"`
	Results   map[string]string  `json:"results"`
	Durations map[string]float64 `json:"durations,omitempty"`
}

// RunFromSnapshot converts a snapshot into a history run with a fresh id.
// Duplicate test ids resolve last-write-wins, as in the diff engine.
func RunFromSnapshot(s *snapshot.Snapshot) Run {
	run := Run{
		RunID:     uuid.NewString(),
		Results:   map[string]string{},
		Durations: map[string]float64{},
	}
	if s == nil {
		return run
	}
	run.CreatedAt = s.CreatedAt
	for _, rec := range s.Tests {
		run.Results[rec.ID] = rec.Outcome
		if rec.ValidDuration() {
			run.Durations[rec.ID] = snapshot.Round(rec.Duration, 6)
		} else {
			delete(run.Durations, rec.ID)
		}
	}
	return run
}

// File is a JSONL history file bounded to a maximum number of runs.
//
// # Thread Safety
//
// Not safe for concurrent Append calls against the same path.
type File struct {
	path    string
	maxRuns int
	logger  *slog.Logger
}

// NewFile creates a history file handle. maxRuns below 1 uses
// DefaultMaxRuns. A nil logger uses slog.Default().
func NewFile(path string, maxRuns int, logger *slog.Logger) *File {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, maxRuns: maxRuns, logger: logger}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load reads the retained runs, oldest first.
//
// # Description
//
// A missing file yields no runs and no error. Lines that are not valid
// JSON are skipped with a warning so that one torn write does not discard
// the whole history. At most maxRuns newest runs are returned.
func (f *File) Load(ctx context.Context) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	window := NewWindow[Run](f.maxRuns)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var run Run
		if err := json.Unmarshal(raw, &run); err != nil {
			f.logger.Warn("skipping malformed history line",
				slog.String("path", f.path),
				slog.Int("line", line),
				slog.String("error", err.Error()))
			continue
		}
		window.Push(run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return window.Slice(), nil
}

// Append adds run to the history and trims it to the newest maxRuns lines.
// The file is rewritten atomically.
func (f *File) Append(ctx context.Context, run Run) error {
	runs, err := f.Load(ctx)
	if err != nil {
		return err
	}

	window := NewWindow[Run](f.maxRuns)
	for _, r := range runs {
		window.Push(r)
	}
	window.Push(run)

	if err := f.write(window.Slice()); err != nil {
		return err
	}
	f.logger.Debug("history appended",
		slog.String("path", f.path),
		slog.String("run_id", run.RunID),
		slog.Int("retained", window.Len()))
	return nil
}

func (f *File) write(runs []Run) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.jsonl")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, run := range runs {
		if err := enc.Encode(run); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("encode history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
