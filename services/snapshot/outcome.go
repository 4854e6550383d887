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

import "strings"

// Outcome is the closed classification of a raw outcome string.
//
// Raw strings are kept verbatim on TestRecord; Outcome is what the diff
// engine reasons about. Any string that is not a recognized spelling maps
// to OutcomeOther, which never participates in flaky detection on its own.
type Outcome int

const (
	// OutcomeOther covers unknown runner outcomes ("error", "rerun", "").
	OutcomeOther Outcome = iota

	// OutcomePassed is a passing test.
	OutcomePassed

	// OutcomeFailed is a failing test.
	OutcomeFailed

	// OutcomeSkipped is a skipped test.
	OutcomeSkipped

	// OutcomeXFailed is an expected failure ("xfailed" or "xfail").
	OutcomeXFailed

	// OutcomeXPassed is an unexpected pass ("xpassed" or "xpass").
	OutcomeXPassed
)

// Canonical raw spellings written by snapdiff producers.
const (
	RawPassed  = "passed"
	RawFailed  = "failed"
	RawSkipped = "skipped"
	RawXFailed = "xfailed"
	RawXPassed = "xpassed"
)

// ParseOutcome classifies a raw outcome string. Matching is exact on the
// lowercase spellings emitted by test runners; "xfail" and "xpass" are
// accepted as aliases.
func ParseOutcome(raw string) Outcome {
	switch raw {
	case RawPassed:
		return OutcomePassed
	case RawFailed:
		return OutcomeFailed
	case RawSkipped:
		return OutcomeSkipped
	case RawXFailed, "xfail":
		return OutcomeXFailed
	case RawXPassed, "xpass":
		return OutcomeXPassed
	default:
		return OutcomeOther
	}
}

// String returns the canonical spelling, or "other".
func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return RawPassed
	case OutcomeFailed:
		return RawFailed
	case OutcomeSkipped:
		return RawSkipped
	case OutcomeXFailed:
		return RawXFailed
	case OutcomeXPassed:
		return RawXPassed
	default:
		return "other"
	}
}

// IsXFailLike reports whether o is an expected failure.
func (o Outcome) IsXFailLike() bool { return o == OutcomeXFailed }

// IsXPassLike reports whether o is an unexpected pass.
func (o Outcome) IsXPassLike() bool { return o == OutcomeXPassed }

// IsVerdict reports whether o belongs to {passed, failed, xfailed, xpassed},
// the outcomes whose transitions count toward flaky detection.
func (o Outcome) IsVerdict() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeXFailed, OutcomeXPassed:
		return true
	default:
		return false
	}
}

// Outcomes lists every category in display order.
func Outcomes() []Outcome {
	return []Outcome{OutcomePassed, OutcomeFailed, OutcomeXFailed, OutcomeXPassed, OutcomeSkipped, OutcomeOther}
}

// NormalizeRawOutcome lowercases and trims a runner-provided outcome.
// Producers call it before building records; decoding never does.
func NormalizeRawOutcome(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
