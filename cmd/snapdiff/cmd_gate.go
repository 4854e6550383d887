// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/snapdiff/services/budget"
	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/history"
	"github.com/AleutianAI/snapdiff/services/render"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
	"github.com/AleutianAI/snapdiff/services/telemetry"
)

type gateOptions struct {
	failOn          string
	slowerRatio     float64
	slowerAbs       float64
	flakeThreshold  float64
	minCount        int
	maxImpact       int
	requireBaseline bool
	updateBaseline  bool
	budgets         string
	historyPath     string
	noHistory       bool

	diffJSON        string
	markdown        string
	metricsTextfile string
	influx          telemetry.InfluxConfig
	fullIDs         bool
}

func newGateCmd(c *cli) *cobra.Command {
	var opts gateOptions
	cmd := &cobra.Command{
		Use:   "gate <baseline> <current>",
		Short: "Compare a run against its baseline and fail on regressions",
		Long: `Each argument is a store label or a snapshot file (a path or a name ending
in .json). A missing baseline passes as a first run. The command exits 1
when the gate fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.applyGateFlags(cmd, &opts); err != nil {
				return err
			}
			return c.runGate(cmd.Context(), args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.failOn, "fail-on", string(gate.FailOnNewFailures), "Fail on: new-failures, slower, budgets or any")
	f.Float64Var(&opts.slowerRatio, "slower-ratio", diff.DefaultSlowerRatio, "Relative slowdown threshold")
	f.Float64Var(&opts.slowerAbs, "slower-abs", diff.DefaultSlowerAbs, "Absolute slowdown threshold in seconds")
	f.Float64Var(&opts.flakeThreshold, "flake-threshold", diff.DefaultFlakeThreshold, "Ignore regressions of tests with a flake score at or above this")
	f.IntVar(&opts.minCount, "min-count", 0, "Skip the gate when fewer tests were collected")
	f.IntVar(&opts.maxImpact, "max-impact", -1, "Fail when the impact score exceeds this (-1 disables)")
	f.BoolVar(&opts.requireBaseline, "require-baseline", false, "Fail when the baseline is missing")
	f.BoolVar(&opts.updateBaseline, "update-baseline", false, "Store the current run as the baseline when the gate passes")
	f.StringVar(&opts.budgets, "budgets", "", "Performance budget file (YAML or JSON)")
	f.StringVar(&opts.historyPath, "history", "", "Run history file (default: <artifacts>/history.jsonl)")
	f.BoolVar(&opts.noHistory, "no-history", false, "Do not use run history for flake scores and budgets")
	f.StringVar(&opts.diffJSON, "diff-json", "", "Write the diff report as JSON to this file")
	f.StringVar(&opts.markdown, "markdown", "", "Write a markdown report to this file")
	f.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "Write Prometheus textfile metrics to this file")
	f.StringVar(&opts.influx.URL, "influx-url", "", "InfluxDB URL for run points")
	f.StringVar(&opts.influx.Token, "influx-token", "", "InfluxDB token")
	f.StringVar(&opts.influx.Org, "influx-org", "", "InfluxDB organization")
	f.StringVar(&opts.influx.Bucket, "influx-bucket", "", "InfluxDB bucket")
	f.BoolVar(&opts.fullIDs, "full-ids", false, "Print full test ids")
	return cmd
}

// applyGateFlags overlays explicitly set flags on the loaded config.
func (c *cli) applyGateFlags(cmd *cobra.Command, opts *gateOptions) error {
	f := cmd.Flags()
	cfg := c.cfg
	if f.Changed("fail-on") {
		cfg.Gate.FailOn = opts.failOn
	}
	if f.Changed("slower-ratio") {
		cfg.Diff.SlowerRatio = opts.slowerRatio
	}
	if f.Changed("slower-abs") {
		cfg.Diff.SlowerAbs = opts.slowerAbs
	}
	if f.Changed("flake-threshold") {
		cfg.Diff.FlakeThreshold = opts.flakeThreshold
	}
	if f.Changed("min-count") {
		cfg.Gate.MinCount = opts.minCount
	}
	if f.Changed("max-impact") {
		cfg.Gate.MaxImpact = opts.maxImpact
	}
	if f.Changed("require-baseline") {
		cfg.Gate.RequireBaseline = opts.requireBaseline
	}
	if f.Changed("update-baseline") {
		cfg.Gate.UpdateBaseline = opts.updateBaseline
	}
	if opts.budgets != "" {
		cfg.Budgets = opts.budgets
	}
	if opts.historyPath != "" {
		cfg.History.Path = opts.historyPath
	}
	if opts.noHistory {
		cfg.History.Enabled = false
	}
	if opts.influx.URL != "" {
		cfg.Influx.URL = opts.influx.URL
	}
	if opts.influx.Token != "" {
		cfg.Influx.Token = opts.influx.Token
	}
	if opts.influx.Org != "" {
		cfg.Influx.Org = opts.influx.Org
	}
	if opts.influx.Bucket != "" {
		cfg.Influx.Bucket = opts.influx.Bucket
	}

	cfg.Canonicalize(c.slog())
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	return nil
}

func (c *cli) runGate(ctx context.Context, baseRef, curRef string, opts gateOptions) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var baseline, current *snapshot.Snapshot
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s, err := loadRef(egCtx, st, baseRef)
		if errors.Is(err, store.ErrSnapshotNotFound) {
			c.logger.Info("baseline not found", "baseline", baseRef)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load baseline: %w", err)
		}
		baseline = s
		return nil
	})
	eg.Go(func() error {
		s, err := loadRef(egCtx, st, curRef)
		if errors.Is(err, store.ErrSnapshotNotFound) {
			return fmt.Errorf("Snapshot not found: %s", displayName(curRef))
		}
		if err != nil {
			return fmt.Errorf("load current: %w", err)
		}
		current = s
		return nil
	})
	if err := eg.Wait(); err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	in, err := c.gateInput(ctx, current)
	if err != nil {
		return err
	}
	in.Baseline = baseline

	shutdown, err := telemetry.Init(ctx, c.cfg.Telemetry)
	if err != nil {
		c.logger.Warn("telemetry disabled", "error", err)
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}
	gateOpts := append(c.cfg.GateOptions(), gate.WithGateLogger(c.slog()))
	if metrics, err := telemetry.NewMetrics(otel.Meter("snapdiff")); err == nil {
		gateOpts = append(gateOpts, gate.WithRecorder(metrics))
	}

	ctx, span := telemetry.StartSpan(ctx, "snapdiff.cli", "cli.gate")
	defer span.End()

	decision, err := gate.NewGate(gateOpts...).Check(ctx, in)
	if err != nil {
		telemetry.RecordError(span, err)
		return usageErrorf("gate: %v", err)
	}

	if c.cfg.Gate.UpdateBaseline && decision.Pass && !isFileRef(baseRef) && baseRef != curRef {
		if err := st.Put(ctx, baseRef, current); err != nil {
			c.logger.Warn("failed to update baseline", "baseline", baseRef, "error", err)
		} else {
			decision.BaselineUpdated = true
		}
	}

	p := c.printer()
	if decision.Report != nil {
		p.Report(decision.Report, render.ReportOptions{FullIDs: opts.fullIDs})
	}
	p.Decision(decision)
	if decision.BaselineUpdated {
		fmt.Fprintf(c.stdout, "Baseline %s updated\n", baseRef)
	}

	if err := c.writeGateOutputs(ctx, decision, baseRef, curRef, opts); err != nil {
		return err
	}

	if !decision.Pass {
		return &ExitError{
			Code:   ExitGate,
			Err:    fmt.Errorf("%w: %s", gate.ErrGateFailed, decision.Reason),
			Silent: true,
		}
	}
	return nil
}

// gateInput gathers flake scores and budget violations for current from
// the run history and the budget file.
//
// Flake scores come from the runs before current only, so that a single
// pass-to-fail change is not mistaken for flakiness. Budgets observe the
// current durations on top of the prior ones.
func (c *cli) gateInput(ctx context.Context, current *snapshot.Snapshot) (gate.Input, error) {
	in := gate.Input{Current: current}

	var prior []history.Run
	if c.cfg.History.Enabled {
		runs, err := c.historyFile().Load(ctx)
		if err != nil {
			c.logger.Warn("failed to load history", "path", c.cfg.HistoryPath(), "error", err)
		}
		prior = priorRuns(runs, current)
		if len(prior) > 0 {
			in.FlakeScores = history.FlakeScores(prior)
		}
	}

	if c.cfg.Budgets != "" {
		spec, err := budget.Load(c.cfg.Budgets)
		if err != nil {
			return in, usageErrorf("%v", err)
		}
		in.Budgets = spec.Evaluate(budget.Observe(current, history.Durations(prior)))
	}
	return in, nil
}

// priorRuns drops the newest history run when it is the one `record`
// appended for current.
func priorRuns(runs []history.Run, current *snapshot.Snapshot) []history.Run {
	if len(runs) == 0 {
		return runs
	}
	last := runs[len(runs)-1]
	self := history.RunFromSnapshot(current)
	if last.CreatedAt == self.CreatedAt && maps.Equal(last.Results, self.Results) {
		return runs[:len(runs)-1]
	}
	return runs
}

func (c *cli) writeGateOutputs(ctx context.Context, d *gate.Decision, baseRef, curRef string, opts gateOptions) error {
	if opts.diffJSON != "" && d.Report != nil {
		data, err := json.Marshal(d.Report)
		if err != nil {
			return usageErrorf("encode diff: %v", err)
		}
		if err := os.WriteFile(opts.diffJSON, data, 0644); err != nil {
			return usageErrorf("write diff json: %v", err)
		}
	}
	if opts.markdown != "" {
		if err := os.WriteFile(opts.markdown, []byte(d.Markdown), 0644); err != nil {
			return usageErrorf("write markdown: %v", err)
		}
	}
	if opts.metricsTextfile != "" {
		labels := map[string]string{"baseline": baseRef, "current": curRef}
		if err := telemetry.WriteTextfile(opts.metricsTextfile, d, labels); err != nil {
			return usageErrorf("write metrics textfile: %v", err)
		}
	}
	if c.cfg.Influx.Enabled() {
		sink, err := telemetry.NewInfluxSink(c.cfg.Influx)
		if err != nil {
			c.logger.Warn("influx disabled", "error", err)
			return nil
		}
		defer sink.Close()
		tags := map[string]string{"baseline": baseRef, "current": curRef}
		if err := sink.Write(ctx, d, tags); err != nil {
			c.logger.Warn("failed to write influx point", "error", err)
		}
	}
	return nil
}
