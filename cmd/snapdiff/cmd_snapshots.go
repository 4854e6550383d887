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
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/render"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
)

// -----------------------------------------------------------------------------
// diff
// -----------------------------------------------------------------------------

type diffOptions struct {
	all     bool
	fullIDs bool
	compare diff.CompareOptions
}

func newDiffCmd(c *cli) *cobra.Command {
	opts := diffOptions{compare: diff.DefaultCompareOptions()}
	cmd := &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Show every outcome transition between two snapshots (a -> b)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDiff(cmd.Context(), args[0], args[1], opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.all, "all", false, "List every persistent pass")
	f.BoolVar(&opts.fullIDs, "full-ids", false, "Print full test ids")
	f.BoolVar(&opts.compare.Perf, "perf", false, "Also compare durations")
	f.Float64Var(&opts.compare.PerfRatio, "perf-ratio", diff.DefaultPerfRatio, "Minimum duration ratio for a timing change")
	f.Float64Var(&opts.compare.PerfAbs, "perf-abs", diff.DefaultPerfAbs, "Minimum duration delta in seconds for a timing change")
	f.BoolVar(&opts.compare.ShowFaster, "perf-show-faster", false, "Also list tests that got faster")
	return cmd
}

func (c *cli) runDiff(ctx context.Context, aRef, bRef string, opts diffOptions) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	refs := []string{aRef, bRef}
	snaps := make([]*snapshot.Snapshot, len(refs))
	missing := make([]string, len(refs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		eg.Go(func() error {
			s, err := loadRef(egCtx, st, ref)
			if errors.Is(err, store.ErrSnapshotNotFound) {
				missing[i] = displayName(ref)
				return nil
			}
			if err != nil {
				return err
			}
			snaps[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return usageErrorf("%v", err)
	}
	if missing[0] != "" || missing[1] != "" {
		return usageErrorf("Missing snapshots: %s", strings.TrimSpace(strings.Join(missing, " ")))
	}

	cmp := diff.Compare(snaps[0], snaps[1], opts.compare)
	ro := render.ComparisonOptionsFrom(opts.compare)
	ro.All = opts.all
	ro.FullIDs = opts.fullIDs
	c.printer().Comparison(displayName(aRef), displayName(bRef), cmp, ro)
	return nil
}

// -----------------------------------------------------------------------------
// show
// -----------------------------------------------------------------------------

func newShowCmd(c *cli) *cobra.Command {
	opts := render.DefaultShowOptions()
	cmd := &cobra.Command{
		Use:   "show <label>",
		Short: "Summarize a single snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runShow(cmd.Context(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.TopSlowest, "top-slowest", opts.TopSlowest, "Show the N slowest tests")
	f.BoolVar(&opts.Full, "full", false, "List all failed and xfail tests")
	f.IntVar(&opts.MaxIDLen, "max-id-len", opts.MaxIDLen, "Maximum displayed test id length")
	f.BoolVar(&opts.NoTrunc, "no-trunc", false, "Disable test id truncation")
	f.BoolVar(&opts.FullIDs, "full-ids", false, "Print full test ids")
	return cmd
}

func (c *cli) runShow(ctx context.Context, ref string, opts render.ShowOptions) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := loadRef(ctx, st, ref)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return usageErrorf("Snapshot not found: %s", displayName(ref))
	}
	if err != nil {
		return usageErrorf("%v", err)
	}
	c.printer().Show(displayName(ref), s, opts)
	return nil
}

// -----------------------------------------------------------------------------
// list and clean
// -----------------------------------------------------------------------------

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runList(cmd.Context())
		},
	}
}

func (c *cli) runList(ctx context.Context) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fs, isFile := st.(*store.FileStore)
	if isFile {
		if _, err := os.Stat(fs.Dir()); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(c.stdout, "(no artifacts directory)")
			return nil
		}
	}

	labels, err := st.List(ctx)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if len(labels) == 0 {
		fmt.Fprintln(c.stdout, "(no snapshots found)")
		return nil
	}
	for _, label := range labels {
		if isFile {
			fmt.Fprintln(c.stdout, displayName(label))
		} else {
			fmt.Fprintln(c.stdout, label)
		}
	}
	return nil
}

func newCleanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the artifacts directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runClean(cmd.Context())
		},
	}
}

func (c *cli) runClean(ctx context.Context) error {
	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fs, ok := st.(*store.FileStore)
	if !ok {
		return usageErrorf("clean only supports the file store")
	}
	removed, err := fs.Clean()
	if err != nil {
		return usageErrorf("%v", err)
	}
	if removed {
		fmt.Fprintf(c.stdout, "Removed %s\n", fs.Dir())
	} else {
		fmt.Fprintf(c.stdout, "No artifacts directory to remove (%s)\n", fs.Dir())
	}
	return nil
}
