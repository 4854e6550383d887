// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Action  string   `json:"Action"`
	Package string   `json:"Package"`
	Test    string   `json:"Test"`
	Elapsed *float64 `json:"Elapsed"`
	Output  string   `json:"Output"`
}

type goTestState struct {
	elapsed  float64
	outcome  string
	output   []string
	finished bool
}

// FromGoTest parses a `go test -json` stream.
//
// Description:
//
//	Every test and subtest becomes a record with id "<package>::<Test>".
//	pass, fail and skip actions set the outcome; a test that started but
//	never reported a result (panic, timeout) is recorded as failed.
//	Failed tests get a signature from their first output line that is
//	not test framework chatter. Lines that are not JSON events, such as
//	build errors, are skipped with a debug log.
//
// Inputs:
//
//	r - The event stream.
//	opts - Normalization and logging.
//
// Outputs:
//
//	*snapshot.Snapshot - Records in first-seen order.
//	error - ErrNoTests when no test events were found, or a read error.
func FromGoTest(r io.Reader, opts Options) (*snapshot.Snapshot, error) {
	logger := opts.logger()
	states := make(map[string]*goTestState)
	var order []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev testEvent
		if line[0] != '{' || json.Unmarshal(line, &ev) != nil {
			skipped++
			continue
		}
		if ev.Test == "" {
			continue
		}

		id := ev.Package + "::" + ev.Test
		st, ok := states[id]
		if !ok || (st.finished && ev.Action == "run") {
			st = &goTestState{}
			if !ok {
				order = append(order, id)
			}
			states[id] = st
		}

		switch ev.Action {
		case "output":
			st.output = append(st.output, ev.Output)
		case "pass", "fail", "skip":
			st.outcome = goTestOutcome(ev.Action)
			st.finished = true
			if ev.Elapsed != nil {
				st.elapsed = *ev.Elapsed
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read go test output: %w", err)
	}
	if skipped > 0 {
		logger.Debug("skipped non-event lines", slog.Int("lines", skipped))
	}

	c := newCollector(opts.Normalize)
	for _, id := range order {
		st := states[id]
		rec := snapshot.TestRecord{ID: id, Outcome: st.outcome, Duration: st.elapsed}
		if !st.finished {
			rec.Outcome = snapshot.RawFailed
			logger.Warn("test did not report a result", slog.String("id", id))
		}
		if rec.Outcome == snapshot.RawFailed {
			rec.Sig = snapshot.FailureSignature(firstFailureLine(st.output))
		}
		c.add(rec)
	}
	return c.snapshot()
}

func goTestOutcome(action string) string {
	switch action {
	case "pass":
		return snapshot.RawPassed
	case "fail":
		return snapshot.RawFailed
	default:
		return snapshot.RawSkipped
	}
}

var goTestChatter = []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- FAIL", "--- PASS", "--- SKIP"}

// firstFailureLine returns the first output line that is not emitted by
// the testing framework itself.
func firstFailureLine(output []string) string {
	for _, chunk := range output {
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || isChatter(trimmed) {
				continue
			}
			return trimmed
		}
	}
	return ""
}

func isChatter(line string) bool {
	for _, prefix := range goTestChatter {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
