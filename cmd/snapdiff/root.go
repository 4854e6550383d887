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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/snapdiff/pkg/logging"
	"github.com/AleutianAI/snapdiff/pkg/ux"
	"github.com/AleutianAI/snapdiff/services/config"
	"github.com/AleutianAI/snapdiff/services/history"
	"github.com/AleutianAI/snapdiff/services/render"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	artifacts  string
	store      string
	logLevel   string
	logDir     string
	plain      bool
}

// cli is the state of one command invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	flags  globalFlags
	cfg    *config.Config
	logger *logging.Logger
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdin: os.Stdin, stdout: stdout, stderr: stderr}
	return c.execute(context.Background(), args)
}

func (c *cli) execute(ctx context.Context, args []string) int {
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	err := root.ExecuteContext(ctx)
	if c.logger != nil {
		_ = c.logger.Close()
	}
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || !exitErr.Silent {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
		}
	}
	return exitCode(err)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "snapdiff",
		Short: "Diff test suite snapshots and gate CI runs on regressions",
		Long: `snapdiff records the per-test outcome and duration of a test run as a
snapshot, then compares snapshots to find new failures, fixes, flaky and
slower tests and performance budget violations.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	pf.StringVar(&c.flags.artifacts, "artifacts", "", "Artifacts directory (default: "+store.DefaultArtifactsDir+")")
	pf.StringVar(&c.flags.store, "store", "", "Snapshot store: directory, gs://bucket/prefix, badger://path or memory:")
	pf.StringVar(&c.flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&c.flags.logDir, "log-dir", "", "Also write JSON logs to this directory")
	pf.BoolVar(&c.flags.plain, "plain", false, "Disable colored output")

	root.AddCommand(
		newRecordCmd(c),
		newGateCmd(c),
		newDiffCmd(c),
		newShowCmd(c),
		newListCmd(c),
		newCleanCmd(c),
		newFlakesCmd(c),
		newWatchCmd(c),
		newServeCmd(c),
	)
	return root
}

// setup builds the logger and loads the configuration before any command
// runs. Flag values override the file and environment.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	level, ok := logging.ParseLevel(c.flags.logLevel)
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  c.flags.logDir,
		Service: "snapdiff",
		Output:  c.stderr,
	})
	if !ok {
		c.logger.Warn("unknown log level, using info", "level", c.flags.logLevel)
	}

	cfg, err := config.Load(c.flags.configPath, c.logger.Slog())
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	if c.flags.artifacts != "" {
		cfg.Artifacts = c.flags.artifacts
	}
	if c.flags.store != "" {
		cfg.Store = c.flags.store
	}
	c.cfg = cfg
	return nil
}

// -----------------------------------------------------------------------------
// Shared helpers
// -----------------------------------------------------------------------------

func (c *cli) slog() *slog.Logger {
	return c.logger.Slog()
}

func (c *cli) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, c.cfg.StoreConfig(c.slog()))
	if err != nil {
		return nil, usageErrorf("open store: %v", err)
	}
	return st, nil
}

func (c *cli) printer() *render.Printer {
	return render.NewPrinter(c.stdout, ux.NewTheme(ux.ColorEnabled(c.flags.plain, c.stdout)))
}

func (c *cli) historyFile() *history.File {
	return history.NewFile(c.cfg.HistoryPath(), c.cfg.History.Max, c.slog())
}

// isFileRef reports whether a snapshot argument names a file rather than
// a store label.
func isFileRef(ref string) bool {
	return strings.HasSuffix(ref, ".json") || strings.ContainsAny(ref, `/\`)
}

// displayName is the name a snapshot argument is shown under.
func displayName(ref string) string {
	if isFileRef(ref) {
		return filepath.Base(ref)
	}
	return "snap_" + ref + ".json"
}

// loadRef loads a snapshot from a file path or a store label. A missing
// snapshot is reported as store.ErrSnapshotNotFound in both cases.
func loadRef(ctx context.Context, st store.Store, ref string) (*snapshot.Snapshot, error) {
	if isFileRef(ref) {
		s, err := snapshot.ReadFile(ref)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrSnapshotNotFound, ref)
		}
		return s, err
	}
	return st.Get(ctx, ref)
}
