// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes snapshot storage, the diff engine and the gate over
// HTTP.
//
// All endpoints live under /v1/snapdiff. Errors are returned as
// ErrorResponse with a stable machine-readable Code.
package api

import (
	"time"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// ServiceVersion is the API version reported by the health endpoint.
const ServiceVersion = "0.1.0"

// Error codes.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidLabel    = "INVALID_LABEL"
	CodeInvalidSnapshot = "INVALID_SNAPSHOT"
	CodeNotFound        = "NOT_FOUND"
	CodeStoreError      = "STORE_ERROR"
	CodeGateError       = "GATE_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is returned by GET /v1/snapdiff/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Algorithm int    `json:"algorithm_version"`
}

// ListResponse is returned by GET /v1/snapdiff/snapshots.
type ListResponse struct {
	Labels []string `json:"labels"`
}

// PutResponse is returned by PUT /v1/snapdiff/snapshots/:label.
type PutResponse struct {
	Label     string `json:"label"`
	Tests     int    `json:"tests"`
	Collected int    `json:"collected"`
}

// DiffRequest is the body of POST /v1/snapdiff/diff.
//
// Threshold fields left unset use the engine defaults. A missing
// baseline is treated as an empty snapshot.
type DiffRequest struct {
	Baseline *snapshot.Snapshot `json:"baseline"`
	Current  *snapshot.Snapshot `json:"current" binding:"required"`

	SlowerRatio    *float64               `json:"slower_ratio" binding:"omitempty,gt=0"`
	SlowerAbs      *float64               `json:"slower_abs" binding:"omitempty,gte=0"`
	FlakeThreshold *float64               `json:"flake_threshold" binding:"omitempty,gte=0"`
	FlakeScores    map[string]float64     `json:"flake_scores"`
	Budgets        []diff.BudgetViolation `json:"budgets"`
}

// Options converts the request thresholds to engine options.
func (r *DiffRequest) Options() diff.Options {
	opts := diff.DefaultOptions()
	if r.SlowerRatio != nil {
		opts.SlowerRatio = *r.SlowerRatio
	}
	if r.SlowerAbs != nil {
		opts.SlowerAbs = *r.SlowerAbs
	}
	if r.FlakeThreshold != nil {
		opts.FlakeThreshold = *r.FlakeThreshold
	}
	opts.FlakeScores = r.FlakeScores
	opts.Budgets = r.Budgets
	return opts
}

// GateRequest is the optional body of POST /v1/snapdiff/gate/:baseline/:current.
type GateRequest struct {
	FlakeScores map[string]float64     `json:"flake_scores"`
	Budgets     []diff.BudgetViolation `json:"budgets"`
}

// GateResponse is the JSON form of a gate decision.
type GateResponse struct {
	Pass            bool         `json:"pass"`
	Skipped         bool         `json:"skipped"`
	Reason          string       `json:"reason,omitempty"`
	FailOn          string       `json:"fail_on"`
	Collected       int          `json:"collected"`
	Summary         string       `json:"summary"`
	Markdown        string       `json:"markdown"`
	BaselineUpdated bool         `json:"baseline_updated"`
	DurationMs      int64        `json:"duration_ms"`
	Timestamp       time.Time    `json:"timestamp"`
	Report          *diff.Report `json:"report,omitempty"`
}

// NewGateResponse converts a decision.
func NewGateResponse(d *gate.Decision) GateResponse {
	return GateResponse{
		Pass:            d.Pass,
		Skipped:         d.Skipped,
		Reason:          d.Reason,
		FailOn:          string(d.FailOn),
		Collected:       d.Collected,
		Summary:         d.Summary,
		Markdown:        d.Markdown,
		BaselineUpdated: d.BaselineUpdated,
		DurationMs:      d.Duration.Milliseconds(),
		Timestamp:       d.Timestamp,
		Report:          d.Report,
	}
}
