// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides observability for snapdiff runs.
//
// Traces and live metrics go through OpenTelemetry. Init configures the
// global TracerProvider and MeterProvider from the exporter names in
// Config; after that otel.Tracer and otel.Meter are ready everywhere.
//
// Two CI-oriented sinks sit beside the OTel pipeline because a gate run
// is a short-lived process that nothing scrapes:
//
//   - WriteTextfile writes a Prometheus text file for the node exporter's
//     textfile collector.
//   - InfluxSink writes one point per gated run for trend dashboards.
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - SNAPDIFF_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry
