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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/snapdiff/services/history"
	"github.com/AleutianAI/snapdiff/services/ingest"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
)

// Input formats accepted by record.
const (
	formatGoTest   = "gotest"
	formatJUnit    = "junit"
	formatSnapshot = "snapshot"
)

type recordOptions struct {
	from      string
	input     string
	normalize string
	collected int
	noHistory bool
}

func newRecordCmd(c *cli) *cobra.Command {
	var opts recordOptions
	cmd := &cobra.Command{
		Use:   "record <label>",
		Short: "Record a snapshot from go test -json, JUnit XML or snapshot JSON",
		Long: `Reads test results and stores them as the snapshot <label>.

  go test -json ./... | snapdiff record pr
  snapdiff record main --from junit --input report.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("normalize") {
				opts.normalize = c.cfg.Normalize
			}
			return c.runRecord(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", formatGoTest, "Input format: gotest, junit or snapshot")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "Input file, - for stdin")
	cmd.Flags().StringVar(&opts.normalize, "normalize", "off", "Test id normalization: off, basename or noparams")
	cmd.Flags().IntVar(&opts.collected, "collected", -1, "Collected test count (default: number of records)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not append this run to the flake history")
	return cmd
}

func (c *cli) runRecord(ctx context.Context, label string, opts recordOptions) error {
	if err := store.ValidateLabel(label); err != nil {
		return usageErrorf("%v", err)
	}
	mode, err := snapshot.ParseNormalizeMode(opts.normalize)
	if err != nil {
		return usageErrorf("%v", err)
	}

	var r io.Reader = c.stdin
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return usageErrorf("open input: %v", err)
		}
		defer f.Close()
		r = f
	}

	snap, err := readResults(r, opts.from, ingest.Options{Normalize: mode, Logger: c.slog()})
	if err != nil {
		return usageErrorf("%v", err)
	}
	if opts.collected >= 0 {
		snap.Collected = opts.collected
	}

	st, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Put(ctx, label, snap); err != nil {
		return usageErrorf("save snapshot: %v", err)
	}
	location := label
	if fs, ok := st.(*store.FileStore); ok {
		location = fs.Path(label)
	}
	fmt.Fprintf(c.stdout, "Saved snapshot: %s (%d tests)\n", location, snap.Len())

	if c.cfg.History.Enabled && !opts.noHistory {
		if err := c.historyFile().Append(ctx, history.RunFromSnapshot(snap)); err != nil {
			c.logger.Warn("failed to append history", "path", c.cfg.HistoryPath(), "error", err)
		}
	}
	return nil
}

func readResults(r io.Reader, format string, opts ingest.Options) (*snapshot.Snapshot, error) {
	switch format {
	case formatGoTest:
		return ingest.FromGoTest(r, opts)
	case formatJUnit:
		return ingest.FromJUnit(r, opts)
	case formatSnapshot:
		snap, err := snapshot.Decode(r)
		if err != nil {
			return nil, err
		}
		for i := range snap.Tests {
			snap.Tests[i].ID = snapshot.NormalizeID(snap.Tests[i].ID, opts.Normalize)
		}
		return snap, nil
	default:
		return nil, fmt.Errorf("unknown input format %q (want gotest, junit or snapshot)", format)
	}
}
