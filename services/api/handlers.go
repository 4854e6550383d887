// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
	"github.com/AleutianAI/snapdiff/services/telemetry"
)

// Handlers contains the HTTP handlers for snapdiff.
//
// Thread Safety: Safe for concurrent use when the store is.
type Handlers struct {
	store    store.Store
	gateOpts []gate.GateOption
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewHandlers creates handlers backed by s.
func NewHandlers(s store.Store) *Handlers {
	return &Handlers{store: s, logger: slog.Default()}
}

// WithGateOptions sets the policy applied by the gate endpoint.
func (h *Handlers) WithGateOptions(opts ...gate.GateOption) *Handlers {
	h.gateOpts = append([]gate.GateOption(nil), opts...)
	return h
}

// WithMetrics records diffs and gate decisions to m.
func (h *Handlers) WithMetrics(m *telemetry.Metrics) *Handlers {
	h.metrics = m
	return h
}

// WithLogger sets the logger. Nil is ignored.
func (h *Handlers) WithLogger(logger *slog.Logger) *Handlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// HandleHealth handles GET /v1/snapdiff/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   ServiceVersion,
		Algorithm: diff.AlgorithmVersion,
	})
}

// HandleListSnapshots handles GET /v1/snapdiff/snapshots.
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	logger := h.requestLogger(c, "HandleListSnapshots")

	labels, err := h.store.List(c.Request.Context())
	if err != nil {
		logger.Error("List failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeStoreError})
		return
	}
	if labels == nil {
		labels = []string{}
	}
	c.JSON(http.StatusOK, ListResponse{Labels: labels})
}

// HandleGetSnapshot handles GET /v1/snapdiff/snapshots/:label.
//
// Response:
//
//	200 OK: snapshot.Snapshot
//	400 Bad Request: Invalid label
//	404 Not Found: No snapshot under the label
func (h *Handlers) HandleGetSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGetSnapshot")
	label, ok := labelParam(c, "label")
	if !ok {
		return
	}

	snap, err := h.store.Get(c.Request.Context(), label)
	if err != nil {
		h.storeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// HandlePutSnapshot handles PUT /v1/snapdiff/snapshots/:label.
//
// Description:
//
//	Stores the snapshot JSON in the request body under the label,
//	replacing any previous snapshot.
//
// Response:
//
//	200 OK: PutResponse
//	400 Bad Request: Invalid label or snapshot
//	500 Internal Server Error: Store failure
func (h *Handlers) HandlePutSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePutSnapshot")
	label, ok := labelParam(c, "label")
	if !ok {
		return
	}

	snap, err := snapshot.Decode(c.Request.Body)
	if err != nil {
		logger.Warn("Invalid snapshot", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidSnapshot})
		return
	}
	if err := h.store.Put(c.Request.Context(), label, snap); err != nil {
		h.storeError(c, logger, err)
		return
	}

	logger.Info("Snapshot stored", "label", label, "tests", snap.Len())
	c.JSON(http.StatusOK, PutResponse{Label: label, Tests: snap.Len(), Collected: snap.Collected})
}

// HandleDeleteSnapshot handles DELETE /v1/snapdiff/snapshots/:label.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteSnapshot")
	label, ok := labelParam(c, "label")
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), label); err != nil {
		h.storeError(c, logger, err)
		return
	}
	logger.Info("Snapshot deleted", "label", label)
	c.Status(http.StatusNoContent)
}

// HandleDiff handles POST /v1/snapdiff/diff.
//
// Description:
//
//	Runs the diff engine on the inline snapshots of the request.
//
// Request Body:
//
//	DiffRequest
//
// Response:
//
//	200 OK: diff.Report
//	400 Bad Request: Validation error
func (h *Handlers) HandleDiff(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDiff")

	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}
	for _, s := range []*snapshot.Snapshot{req.Baseline, req.Current} {
		if s == nil {
			continue
		}
		if s.Version == 0 {
			s.Version = snapshot.SnapshotVersion
		}
		if err := s.Validate(); err != nil {
			logger.Warn("Invalid snapshot", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidSnapshot})
			return
		}
	}

	report := diff.Diff(req.Baseline, req.Current, req.Options())
	h.metrics.RecordDiff(c.Request.Context(), report)

	logger.Info("Diff computed",
		"new_failures", report.Summary.NewFailures,
		"impact_score", report.ImpactScore)
	c.JSON(http.StatusOK, report)
}

// HandleGate handles POST /v1/snapdiff/gate/:baseline/:current.
//
// Description:
//
//	Loads both snapshots from the store and applies the configured gate
//	policy. A failing gate is still a 200 response; inspect Pass.
//
// Request Body:
//
//	GateRequest (optional)
//
// Response:
//
//	200 OK: GateResponse
//	400 Bad Request: Invalid label or body
//	404 Not Found: Current snapshot missing
//	500 Internal Server Error: Store or gate failure
func (h *Handlers) HandleGate(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGate")
	baselineLabel, ok := labelParam(c, "baseline")
	if !ok {
		return
	}
	currentLabel, ok := labelParam(c, "current")
	if !ok {
		return
	}

	var req GateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request body",
				Code:  CodeInvalidRequest,
			})
			return
		}
	}

	opts := append([]gate.GateOption(nil), h.gateOpts...)
	opts = append(opts, gate.WithStore(h.store), gate.WithGateLogger(logger))
	if h.metrics != nil {
		opts = append(opts, gate.WithRecorder(h.metrics))
	}
	g := gate.NewGate(opts...)

	decision, err := g.CheckLabels(c.Request.Context(), baselineLabel, currentLabel, gate.Input{
		FlakeScores: req.FlakeScores,
		Budgets:     req.Budgets,
	})
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
			return
		}
		logger.Error("Gate check failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeGateError})
		return
	}

	c.JSON(http.StatusOK, NewGateResponse(decision))
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func (h *Handlers) storeError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, store.ErrInvalidLabel):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidLabel})
	default:
		logger.Error("Store operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeStoreError})
	}
}

func labelParam(c *gin.Context, name string) (string, bool) {
	label := c.Param(name)
	if err := store.ValidateLabel(label); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidLabel})
		return "", false
	}
	return label, true
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
