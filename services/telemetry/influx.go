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
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/snapdiff/services/gate"
)

// DefaultInfluxMeasurement is the measurement gated runs are written to.
const DefaultInfluxMeasurement = "snapdiff_runs"

// InfluxConfig locates the InfluxDB bucket for run points.
type InfluxConfig struct {
	URL         string `yaml:"url" validate:"omitempty,url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Enabled reports whether a URL and bucket are configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

// InfluxSink writes one point per gate decision.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
}

// NewInfluxSink connects a blocking writer to the configured bucket.
// The client is created lazily by the library; no request is made here.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("influx sink requires url and bucket")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	sink := NewInfluxSinkWithAPI(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement)
	sink.client = client
	return sink, nil
}

// NewInfluxSinkWithAPI wraps an existing write API.
func NewInfluxSinkWithAPI(w api.WriteAPIBlocking, measurement string) *InfluxSink {
	if measurement == "" {
		measurement = DefaultInfluxMeasurement
	}
	return &InfluxSink{writeAPI: w, measurement: measurement}
}

// Write records d as a point tagged with result, fail_on and tags.
//
// Fields are the summary counts, impact score, collected count and
// duration. Skipped decisions carry only collected and duration.
func (s *InfluxSink) Write(ctx context.Context, d *gate.Decision, tags map[string]string) error {
	if d == nil {
		return errors.New("influx write: nil decision")
	}

	pointTags := map[string]string{
		"result":  Result(d),
		"fail_on": string(d.FailOn),
	}
	for k, v := range tags {
		pointTags[k] = v
	}

	fields := map[string]interface{}{
		"collected":        d.Collected,
		"duration_seconds": d.Duration.Seconds(),
		"pass":             d.Pass,
	}
	if d.Report != nil {
		for name, n := range d.Report.Summary.Counts() {
			fields[name] = n
		}
		fields["impact_score"] = d.Report.ImpactScore
	}

	p := influxdb2.NewPoint(s.measurement, pointTags, fields, d.Timestamp)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client, if this sink created one.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
