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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/snapdiff/services/gate"
)

// WriteTextfile writes the decision as Prometheus text exposition to path.
//
// Description:
//
//	Uses a private registry so only snapdiff series are written. The
//	file is replaced atomically, as the node exporter textfile collector
//	expects. Series:
//
//	  snapdiff_gate_pass            1 or 0
//	  snapdiff_gate_skipped         1 or 0
//	  snapdiff_collected_tests      collected count
//	  snapdiff_impact_score         impact score (absent when skipped)
//	  snapdiff_entries{category=…}  summary counts (absent when skipped)
//	  snapdiff_last_run_timestamp_seconds
//
// Inputs:
//
//	path - Destination file. Should end in ".prom".
//	d - The decision. Must not be nil.
//	labels - Constant labels added to every series, e.g. branch. May be nil.
func WriteTextfile(path string, d *gate.Decision, labels map[string]string) error {
	if d == nil {
		return fmt.Errorf("write textfile: nil decision")
	}
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels(labels)

	gauge := func(name, help string, v float64) error {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: constLabels})
		g.Set(v)
		return reg.Register(g)
	}

	if err := gauge("snapdiff_gate_pass", "Whether the last gate check passed.", boolGauge(d.Pass)); err != nil {
		return err
	}
	if err := gauge("snapdiff_gate_skipped", "Whether the last gate check was skipped.", boolGauge(d.Skipped)); err != nil {
		return err
	}
	if err := gauge("snapdiff_collected_tests", "Tests collected in the current run.", float64(d.Collected)); err != nil {
		return err
	}
	if err := gauge("snapdiff_last_run_timestamp_seconds", "Unix time of the last gate check.",
		float64(d.Timestamp.UnixNano())/1e9); err != nil {
		return err
	}

	if d.Report != nil {
		if err := gauge("snapdiff_impact_score", "Impact score of the last diff.", float64(d.Report.ImpactScore)); err != nil {
			return err
		}
		entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "snapdiff_entries",
			Help:        "Summary counts of the last diff by category.",
			ConstLabels: constLabels,
		}, []string{"category"})
		for name, n := range d.Report.Summary.Counts() {
			entries.WithLabelValues(name).Set(float64(n))
		}
		if err := reg.Register(entries); err != nil {
			return err
		}
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write textfile %s: %w", path, err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
