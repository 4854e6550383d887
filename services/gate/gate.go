// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate turns a snapshot diff into a CI pass/fail decision.
//
// The gate owns the policy around the pure diff engine: skipping when no
// baseline exists, the minimum collected-tests noise gate, the fail-on
// category, an optional impact ceiling, and updating the stored baseline
// after a passing run.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrGateFailed indicates the gate did not pass. Returned by callers
	// that map a failing Decision to an error, such as the CLI.
	ErrGateFailed = errors.New("snapshot gate failed")

	// ErrNoStore indicates CheckLabels was called on a gate without a store.
	ErrNoStore = errors.New("gate has no snapshot store")
)

// -----------------------------------------------------------------------------
// Fail-on Policy
// -----------------------------------------------------------------------------

// FailOn selects which categories fail the gate.
type FailOn string

const (
	// FailOnNewFailures fails on any new failure. The default.
	FailOnNewFailures FailOn = "new-failures"

	// FailOnSlower fails on any slower test.
	FailOnSlower FailOn = "slower"

	// FailOnBudgets fails on any budget violation.
	FailOnBudgets FailOn = "budgets"

	// FailOnAny fails on new failures, slower tests, flaky suspects or
	// budget violations.
	FailOnAny FailOn = "any"
)

// ParseFailOn validates a policy name. Unknown names return
// FailOnNewFailures and ok=false.
func ParseFailOn(s string) (FailOn, bool) {
	switch FailOn(strings.ToLower(strings.TrimSpace(s))) {
	case FailOnNewFailures:
		return FailOnNewFailures, true
	case FailOnSlower:
		return FailOnSlower, true
	case FailOnBudgets:
		return FailOnBudgets, true
	case FailOnAny:
		return FailOnAny, true
	default:
		return FailOnNewFailures, false
	}
}

// violations lists the categories in s that trip the policy.
func (f FailOn) violations(s diff.Summary) []string {
	var out []string
	add := func(n int, what string) {
		if n > 0 {
			out = append(out, fmt.Sprintf("%d %s", n, what))
		}
	}
	switch f {
	case FailOnSlower:
		add(s.Slower, "slower test(s)")
	case FailOnBudgets:
		add(s.Budget, "budget violation(s)")
	case FailOnAny:
		add(s.NewFailures, "new failure(s)")
		add(s.Slower, "slower test(s)")
		add(s.Flaky, "flaky suspect(s)")
		add(s.Budget, "budget violation(s)")
	default:
		add(s.NewFailures, "new failure(s)")
	}
	return out
}

// -----------------------------------------------------------------------------
// Gate Configuration
// -----------------------------------------------------------------------------

// Recorder receives every decision, typically to update metrics.
type Recorder interface {
	RecordDecision(ctx context.Context, d *Decision)
}

// GateConfig configures the gate.
type GateConfig struct {
	// Diff holds the engine thresholds. FlakeScores and Budgets are taken
	// from the Input of each check instead.
	Diff diff.Options

	// FailOn is the failing category. Default: new-failures.
	FailOn FailOn

	// MinCount skips the comparison when fewer tests were collected.
	// Default: 0
	MinCount int

	// MaxImpact fails the gate when the impact score exceeds it.
	// Default: -1 (disabled)
	MaxImpact int

	// RequireBaseline fails instead of skipping when no baseline exists.
	// Default: false
	RequireBaseline bool

	// UpdateBaselineOnPass stores the current snapshot as the new
	// baseline after a passing CheckLabels.
	// Default: false
	UpdateBaselineOnPass bool

	// Store backs CheckLabels. Optional.
	Store store.Store

	// Recorder receives decisions. Optional.
	Recorder Recorder

	// Logger for output.
	Logger *slog.Logger
}

// DefaultGateConfig returns the default engine thresholds, fail-on
// new-failures and no impact ceiling.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		Diff:      diff.DefaultOptions(),
		FailOn:    FailOnNewFailures,
		MaxImpact: -1,
		Logger:    slog.Default(),
	}
}

// GateOption configures the gate.
type GateOption func(*GateConfig)

// WithDiffOptions sets the engine thresholds.
func WithDiffOptions(opts diff.Options) GateOption {
	return func(c *GateConfig) {
		c.Diff = opts
	}
}

// WithFailOn sets the failing category.
func WithFailOn(f FailOn) GateOption {
	return func(c *GateConfig) {
		if f != "" {
			c.FailOn = f
		}
	}
}

// WithMinCount sets the minimum collected tests.
func WithMinCount(n int) GateOption {
	return func(c *GateConfig) {
		if n >= 0 {
			c.MinCount = n
		}
	}
}

// WithMaxImpact sets the impact ceiling. Negative disables it.
func WithMaxImpact(n int) GateOption {
	return func(c *GateConfig) {
		c.MaxImpact = n
	}
}

// WithRequireBaseline requires a baseline to exist.
func WithRequireBaseline(required bool) GateOption {
	return func(c *GateConfig) {
		c.RequireBaseline = required
	}
}

// WithUpdateBaseline enables baseline update on pass.
func WithUpdateBaseline(enabled bool) GateOption {
	return func(c *GateConfig) {
		c.UpdateBaselineOnPass = enabled
	}
}

// WithStore sets the snapshot store used by CheckLabels.
func WithStore(s store.Store) GateOption {
	return func(c *GateConfig) {
		c.Store = s
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) GateOption {
	return func(c *GateConfig) {
		c.Recorder = r
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(c *GateConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Gate decides whether a test run may pass CI.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	config *GateConfig
	logger *slog.Logger
}

// NewGate creates a gate.
//
// Inputs:
//   - opts: Configuration options.
//
// Outputs:
//   - *Gate: The new gate. Never nil.
func NewGate(opts ...GateOption) *Gate {
	config := DefaultGateConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Gate{config: config, logger: config.Logger}
}

// Config returns a copy of the effective configuration.
func (g *Gate) Config() GateConfig {
	return *g.config
}

// Input is what one gate check compares.
type Input struct {
	// Baseline may be nil when no baseline exists.
	Baseline *snapshot.Snapshot

	// Current is the run under test. Required.
	Current *snapshot.Snapshot

	// FlakeScores from run history. Nil disables flake filtering.
	FlakeScores map[string]float64

	// Budgets are precomputed budget violations of the current run.
	Budgets []diff.BudgetViolation
}

// Decision is the outcome of a gate check.
type Decision struct {
	// Pass is true if the run may proceed.
	Pass bool

	// Skipped is true when no comparison ran (no baseline, or fewer
	// tests than MinCount).
	Skipped bool

	// Reason explains a skip or a failure.
	Reason string

	// FailOn is the policy that was applied.
	FailOn FailOn

	// Collected is the current snapshot's collected count.
	Collected int

	// Report is the diff. Nil when Skipped.
	Report *diff.Report

	// Summary is the one-line console summary.
	Summary string

	// Markdown is a report suitable for a pull request comment.
	Markdown string

	// BaselineUpdated is true if the baseline was replaced.
	BaselineUpdated bool

	// Duration is the check duration.
	Duration time.Duration

	// Timestamp is when the check was performed.
	Timestamp time.Time
}

// Check compares in.Current against in.Baseline and applies the policy.
//
// Description:
//
//	A nil baseline passes as skipped unless RequireBaseline is set. A
//	current snapshot with fewer collected tests than MinCount passes as
//	skipped. Otherwise the diff engine runs and the gate fails when the
//	FailOn categories are non-empty or the impact exceeds MaxImpact.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - in: Snapshots and auxiliary inputs. in.Current must not be nil.
//
// Outputs:
//   - *Decision: The gate decision. Never nil on success.
//   - error: Non-nil only if the check could not be performed.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Check(ctx context.Context, in Input) (*Decision, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if in.Current == nil {
		return nil, errors.New("current snapshot must not be nil")
	}

	ctx, span := otel.Tracer("gate").Start(ctx, "gate.Gate.Check",
		trace.WithAttributes(
			attribute.String("fail_on", string(g.config.FailOn)),
			attribute.Int("collected", in.Current.Collected),
		),
	)
	defer span.End()

	start := time.Now()
	decision := &Decision{
		FailOn:    g.config.FailOn,
		Collected: in.Current.Collected,
		Timestamp: start,
	}

	switch {
	case in.Baseline == nil && g.config.RequireBaseline:
		decision.Pass = false
		decision.Skipped = true
		decision.Reason = "baseline not found and a baseline is required"
	case in.Baseline == nil:
		decision.Pass = true
		decision.Skipped = true
		decision.Reason = "no baseline - first run"
	case in.Current.Collected < g.config.MinCount:
		decision.Pass = true
		decision.Skipped = true
		decision.Reason = fmt.Sprintf("collected %d < min count %d", in.Current.Collected, g.config.MinCount)
	default:
		g.evaluate(decision, in)
	}

	if decision.Skipped {
		decision.Summary = "[snapdiff] skipped: " + decision.Reason
	} else {
		decision.Summary = summaryLine(decision.Report)
	}
	decision.Markdown = generateReport(decision)
	decision.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Bool("pass", decision.Pass),
		attribute.Bool("skipped", decision.Skipped),
	)
	if decision.Report != nil {
		span.SetAttributes(
			attribute.Int("new_failures", decision.Report.Summary.NewFailures),
			attribute.Int("slower", decision.Report.Summary.Slower),
			attribute.Int("impact_score", decision.Report.ImpactScore),
		)
	}
	if !decision.Pass {
		span.SetStatus(codes.Error, decision.Reason)
	}

	if g.config.Recorder != nil {
		g.config.Recorder.RecordDecision(ctx, decision)
	}

	g.logger.Info("snapshot gate check completed",
		slog.Bool("pass", decision.Pass),
		slog.Bool("skipped", decision.Skipped),
		slog.String("fail_on", string(decision.FailOn)),
		slog.String("reason", decision.Reason),
	)
	return decision, nil
}

func (g *Gate) evaluate(decision *Decision, in Input) {
	opts := g.config.Diff
	opts.MinCount = g.config.MinCount
	opts.FlakeScores = in.FlakeScores
	opts.Budgets = in.Budgets

	report := diff.Diff(in.Baseline, in.Current, opts)
	decision.Report = report

	reasons := g.config.FailOn.violations(report.Summary)
	if g.config.MaxImpact >= 0 && report.ImpactScore > g.config.MaxImpact {
		reasons = append(reasons, fmt.Sprintf("impact %d > %d", report.ImpactScore, g.config.MaxImpact))
	}

	decision.Pass = len(reasons) == 0
	if !decision.Pass {
		decision.Reason = strings.Join(reasons, ", ")
	}
}

// CheckLabels loads the baseline and current snapshots from the store
// concurrently, then runs Check.
//
// Description:
//
//	A missing baseline label is a nil baseline; a missing current label
//	is an error. After a passing, non-skipped or first-run check with
//	UpdateBaselineOnPass set, the current snapshot is stored under the
//	baseline label.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - baselineLabel, currentLabel: Store labels.
//   - extra: FlakeScores and Budgets to use. Snapshots in it are ignored.
func (g *Gate) CheckLabels(ctx context.Context, baselineLabel, currentLabel string, extra Input) (*Decision, error) {
	if g.config.Store == nil {
		return nil, ErrNoStore
	}

	var baseline, current *snapshot.Snapshot
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s, err := g.config.Store.Get(egCtx, baselineLabel)
		if errors.Is(err, store.ErrSnapshotNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load baseline %q: %w", baselineLabel, err)
		}
		baseline = s
		return nil
	})
	eg.Go(func() error {
		s, err := g.config.Store.Get(egCtx, currentLabel)
		if err != nil {
			return fmt.Errorf("load current %q: %w", currentLabel, err)
		}
		current = s
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	extra.Baseline = baseline
	extra.Current = current
	decision, err := g.Check(ctx, extra)
	if err != nil {
		return nil, err
	}

	if decision.Pass && g.config.UpdateBaselineOnPass && baselineLabel != currentLabel {
		if err := g.config.Store.Put(ctx, baselineLabel, current); err != nil {
			g.logger.Warn("failed to update baseline",
				slog.String("label", baselineLabel),
				slog.String("error", err.Error()),
			)
		} else {
			decision.BaselineUpdated = true
		}
	}
	return decision, nil
}

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

// summaryLine formats the one-line console summary of a report.
func summaryLine(r *diff.Report) string {
	s := r.Summary
	return fmt.Sprintf("[snapdiff] new_failures=%d new_passes=%d new_xfails=%d resolved_xfails=%d "+
		"persistent_xfails=%d xpassed=%d fixed=%d removed=%d vanished(agg)=%d flaky=%d slower=%d "+
		"budgets=%d impact=%d",
		s.NewFailures, s.NewPasses, s.NewXFails, s.ResolvedXFails,
		s.PersistentXFails, s.XPassed, s.Fixed, s.Removed, s.Vanished, s.Flaky, s.Slower,
		s.Budget, r.ImpactScore)
}

// generateReport creates a markdown report.
func generateReport(d *Decision) string {
	var sb strings.Builder

	sb.WriteString("# Snapshot Gate Report\n\n")
	switch {
	case d.Skipped && d.Pass:
		sb.WriteString("**Status: SKIPPED**\n\n")
	case d.Pass:
		sb.WriteString("**Status: PASS**\n\n")
	default:
		sb.WriteString("**Status: FAIL**\n\n")
	}

	sb.WriteString(fmt.Sprintf("Fail on: %s\n", d.FailOn))
	sb.WriteString(fmt.Sprintf("Collected: %d\n", d.Collected))
	sb.WriteString(fmt.Sprintf("Timestamp: %s\n", d.Timestamp.UTC().Format(time.RFC3339)))
	if d.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", d.Reason))
	}

	r := d.Report
	if r == nil {
		return sb.String()
	}

	s := r.Summary
	sb.WriteString("\n## Summary\n\n")
	sb.WriteString("| Category | Count |\n")
	sb.WriteString("|----------|-------|\n")
	rows := []struct {
		name string
		n    int
	}{
		{"New failures", s.NewFailures},
		{"Fixed failures", s.Fixed},
		{"Removed failures", s.Removed},
		{"New passes", s.NewPasses},
		{"New xfails", s.NewXFails},
		{"Resolved xfails", s.ResolvedXFails},
		{"XPassed", s.XPassed},
		{"Flaky suspects", s.Flaky},
		{"Slower tests", s.Slower},
		{"Budget violations", s.Budget},
	}
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", row.name, row.n))
	}
	sb.WriteString(fmt.Sprintf("\nImpact score: **%d**\n", r.ImpactScore))

	if len(r.NewFailures) > 0 {
		sb.WriteString("\n## New Failures\n\n")
		for _, c := range r.NewFailures {
			sb.WriteString(fmt.Sprintf("- `%s`%s\n", c.ID, describeChange(c)))
		}
		writeTruncation(&sb, s.NewFailures, len(r.NewFailures))
	}
	if len(r.SlowerTests) > 0 {
		sb.WriteString("\n## Slower Tests\n\n")
		sb.WriteString("| Test | Before | After | Ratio |\n")
		sb.WriteString("|------|--------|-------|-------|\n")
		for _, t := range r.SlowerTests {
			sb.WriteString(fmt.Sprintf("| `%s` | %.3fs | %.3fs | x%.2f |\n", t.ID, t.Prev, t.Curr, t.Ratio))
		}
		writeTruncation(&sb, s.Slower, len(r.SlowerTests))
	}
	if len(r.BudgetViolations) > 0 {
		sb.WriteString("\n## Budget Violations\n\n")
		for _, b := range r.BudgetViolations {
			sb.WriteString(fmt.Sprintf("- `%s`: p95 %.3fs > budget %.3fs\n", b.ID, b.ObservedP95, b.BudgetP95))
		}
		writeTruncation(&sb, s.Budget, len(r.BudgetViolations))
	}
	if len(r.FlakySuspects) > 0 {
		sb.WriteString("\n## Flaky Suspects\n\n")
		for _, f := range r.FlakySuspects {
			sb.WriteString(fmt.Sprintf("- `%s`: %s -> %s (score %.2f)\n", f.ID, f.From, f.To, f.FlakeScore))
		}
		writeTruncation(&sb, s.Flaky, len(r.FlakySuspects))
	}
	if len(r.VanishedFailures) > 0 {
		sb.WriteString("\n## Vanished Failures\n\n")
		for _, c := range r.VanishedFailures {
			sb.WriteString(fmt.Sprintf("- `%s`%s\n", c.ID, describeChange(c)))
		}
		writeTruncation(&sb, s.Vanished, len(r.VanishedFailures))
	}

	if d.BaselineUpdated {
		sb.WriteString("\n*Baseline updated with current snapshot.*\n")
	}
	return sb.String()
}

func describeChange(c diff.Change) string {
	var parts []string
	if c.From != "" || c.To != "" {
		parts = append(parts, fmt.Sprintf("%s -> %s", c.From, c.To))
	} else if c.Outcome != "" {
		parts = append(parts, c.Outcome)
	}
	if c.Sig != "" {
		parts = append(parts, "sig "+c.Sig)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func writeTruncation(sb *strings.Builder, total, shown int) {
	if total > shown {
		sb.WriteString(fmt.Sprintf("\n_%d more not shown._\n", total-shown))
	}
}
