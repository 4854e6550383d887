// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
)

// Metrics contains the OTel instruments for diffs and gate decisions.
//
// Description:
//
//	All metrics use the "snapdiff_" prefix. Metrics implements
//	gate.Recorder so it can be handed to the gate directly.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// DiffsTotal counts engine runs.
	DiffsTotal metric.Int64Counter

	// EntriesTotal counts classified entries by category.
	EntriesTotal metric.Int64Counter

	// ImpactScore records the impact score of each diff.
	ImpactScore metric.Int64Histogram

	// GateDecisionsTotal counts gate decisions by result
	// (pass, fail, skipped) and fail_on policy.
	GateDecisionsTotal metric.Int64Counter

	// GateDuration records gate check duration in seconds.
	GateDuration metric.Float64Histogram
}

// NewMetrics registers the instruments with meter.
//
// Example:
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("snapdiff"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	g := gate.NewGate(gate.WithRecorder(metrics))
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DiffsTotal, err = meter.Int64Counter(
		"snapdiff_diffs_total",
		metric.WithDescription("Total snapshot diffs computed"),
		metric.WithUnit("{diff}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create diffs_total: %w", err)
	}

	m.EntriesTotal, err = meter.Int64Counter(
		"snapdiff_entries_total",
		metric.WithDescription("Classified diff entries by category"),
		metric.WithUnit("{test}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entries_total: %w", err)
	}

	m.ImpactScore, err = meter.Int64Histogram(
		"snapdiff_impact_score",
		metric.WithDescription("Impact score of each diff"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("create impact_score: %w", err)
	}

	m.GateDecisionsTotal, err = meter.Int64Counter(
		"snapdiff_gate_decisions_total",
		metric.WithDescription("Gate decisions by result"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gate_decisions_total: %w", err)
	}

	m.GateDuration, err = meter.Float64Histogram(
		"snapdiff_gate_duration_seconds",
		metric.WithDescription("Gate check duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create gate_duration: %w", err)
	}

	return m, nil
}

// RecordDiff records one engine run. Nil report is a no-op.
func (m *Metrics) RecordDiff(ctx context.Context, r *diff.Report) {
	if m == nil || r == nil {
		return
	}
	m.DiffsTotal.Add(ctx, 1)

	counts := r.Summary.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if n := counts[name]; n > 0 {
			m.EntriesTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", name)))
		}
	}
	m.ImpactScore.Record(ctx, int64(r.ImpactScore))
}

// RecordDecision records a gate decision and the diff behind it.
func (m *Metrics) RecordDecision(ctx context.Context, d *gate.Decision) {
	if m == nil || d == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("result", Result(d)),
		attribute.String("fail_on", string(d.FailOn)),
	)
	m.GateDecisionsTotal.Add(ctx, 1, attrs)
	m.GateDuration.Record(ctx, d.Duration.Seconds())
	m.RecordDiff(ctx, d.Report)
}

// Result labels a decision as "pass", "fail" or "skipped".
func Result(d *gate.Decision) string {
	switch {
	case d.Skipped && d.Pass:
		return "skipped"
	case d.Pass:
		return "pass"
	default:
		return "fail"
	}
}
