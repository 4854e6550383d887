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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/snapdiff/services/api"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/history"
	"github.com/AleutianAI/snapdiff/services/render"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
	"github.com/AleutianAI/snapdiff/services/telemetry"
	"github.com/AleutianAI/snapdiff/services/watch"
)

// -----------------------------------------------------------------------------
// flakes
// -----------------------------------------------------------------------------

func newFlakesCmd(c *cli) *cobra.Command {
	var minScore float64
	cmd := &cobra.Command{
		Use:   "flakes",
		Short: "Print flake scores computed from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("min-score") {
				minScore = c.cfg.Diff.FlakeThreshold
			}
			return c.runFlakes(cmd.Context(), minScore)
		},
	}
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Only list scores at or above this (default: the flake threshold)")
	return cmd
}

func (c *cli) runFlakes(ctx context.Context, minScore float64) error {
	runs, err := c.historyFile().Load(ctx)
	if err != nil {
		return usageErrorf("load history: %v", err)
	}
	if len(runs) == 0 {
		fmt.Fprintf(c.stdout, "(no history at %s)\n", c.cfg.HistoryPath())
		return nil
	}

	ranked := history.Ranked(history.FlakeScores(runs), minScore)
	if len(ranked) == 0 {
		fmt.Fprintf(c.stdout, "No tests with a flake score >= %.2f over %d runs\n", minScore, len(runs))
		return nil
	}
	fmt.Fprintf(c.stdout, "Flake scores over %d runs (>= %.2f):\n", len(runs), minScore)
	for _, f := range ranked {
		fmt.Fprintf(c.stdout, "  %.2f  %s\n", f.Score, f.ID)
	}
	return nil
}

// -----------------------------------------------------------------------------
// watch
// -----------------------------------------------------------------------------

func newWatchCmd(c *cli) *cobra.Command {
	var debounce time.Duration
	var fullIDs bool
	cmd := &cobra.Command{
		Use:   "watch <baseline> <current-file>",
		Short: "Re-run the gate every time a snapshot file changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runWatch(ctx, args[0], args[1], debounce, fullIDs)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultOptions().Debounce, "Wait this long after the last write")
	cmd.Flags().BoolVar(&fullIDs, "full-ids", false, "Print full test ids")
	return cmd
}

func (c *cli) runWatch(ctx context.Context, baseRef, currentPath string, debounce time.Duration, fullIDs bool) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	baseline, err := loadRef(ctx, st, baseRef)
	if err != nil && !errors.Is(err, store.ErrSnapshotNotFound) {
		return usageErrorf("load baseline: %v", err)
	}

	// Flake scores and budgets are taken once, from the history as it
	// stands when watching starts.
	var seed *snapshot.Snapshot
	if s, err := snapshot.ReadFile(currentPath); err == nil {
		seed = s
	} else {
		seed = snapshot.New(nil, 0)
	}
	in, err := c.gateInput(ctx, seed)
	if err != nil {
		return err
	}

	p := c.printer()
	handler := func(u watch.Update) {
		fmt.Fprintf(c.stdout, "== %s %s ==\n", u.Time.Format(time.TimeOnly), currentPath)
		if u.Decision.Report != nil {
			p.Report(u.Decision.Report, render.ReportOptions{FullIDs: fullIDs})
		}
		p.Decision(u.Decision)
	}

	g := gate.NewGate(append(c.cfg.GateOptions(), gate.WithGateLogger(c.slog()))...)
	w, err := watch.New(currentPath, baseline, g, handler, watch.Options{
		Debounce:    debounce,
		FlakeScores: in.FlakeScores,
		Budgets:     in.Budgets,
		Logger:      c.slog(),
	})
	if err != nil {
		return usageErrorf("%v", err)
	}

	if u, err := w.Evaluate(ctx); err == nil {
		handler(u)
	}
	fmt.Fprintf(c.stdout, "Watching %s (Ctrl+C to stop)\n", w.Path())
	if err := w.Run(ctx); err != nil {
		return usageErrorf("watch: %v", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// serve
// -----------------------------------------------------------------------------

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot store, diff engine and gate over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.runServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config, :8090)")
	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	shutdown, err := telemetry.Init(ctx, c.cfg.Telemetry)
	if err != nil {
		return usageErrorf("init telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	metrics, err := telemetry.NewMetrics(otel.Meter("snapdiff"))
	if err != nil {
		return usageErrorf("init metrics: %v", err)
	}

	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	handlers := api.NewHandlers(st).
		WithGateOptions(c.cfg.GateOptions()...).
		WithMetrics(metrics).
		WithLogger(c.slog())

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(c.cfg.Telemetry.ServiceName, handlers, telemetry.MetricsHandler())

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		c.logger.Info("snapdiff server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return usageErrorf("serve: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.logger.Info("shutting down snapdiff server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return usageErrorf("shutdown: %v", err)
	}
	return nil
}
