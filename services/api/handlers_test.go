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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/snapshot"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(s store.Store, opts ...gate.GateOption) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(s).WithGateOptions(opts...)
	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func snap(records ...snapshot.TestRecord) *snapshot.Snapshot {
	return snapshot.New(records, -1)
}

func encode(t *testing.T, s *snapshot.Snapshot) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, snapshot.Encode(&buf, s))
	return buf.Bytes()
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	w := do(t, router, http.MethodGet, "/v1/snapdiff/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, diff.AlgorithmVersion, resp.Algorithm)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_RequestIDEchoed(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/snapdiff/snapshots", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestHandlers_SnapshotLifecycle(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	w := do(t, router, http.MethodGet, "/v1/snapdiff/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"labels":[]}`, w.Body.String())

	s := snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed", Duration: 0.5})
	w = do(t, router, http.MethodPut, "/v1/snapdiff/snapshots/main", encode(t, s))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var put PutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &put))
	assert.Equal(t, PutResponse{Label: "main", Tests: 1, Collected: 1}, put)

	w = do(t, router, http.MethodGet, "/v1/snapdiff/snapshots/main", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := snapshot.Decode(w.Body)
	require.NoError(t, err)
	require.Len(t, got.Tests, 1)
	assert.Equal(t, "t::a", got.Tests[0].ID)

	w = do(t, router, http.MethodGet, "/v1/snapdiff/snapshots", nil)
	assert.JSONEq(t, `{"labels":["main"]}`, w.Body.String())

	w = do(t, router, http.MethodDelete, "/v1/snapdiff/snapshots/main", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/v1/snapdiff/snapshots/main", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/v1/snapdiff/snapshots/main", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_PutSnapshot_Invalid(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"bad json", "/v1/snapdiff/snapshots/main", `{"tests": [`, CodeInvalidSnapshot},
		{"empty id", "/v1/snapdiff/snapshots/main", `{"tests":[{"id":"","outcome":"passed"}]}`, CodeInvalidSnapshot},
		{"future version", "/v1/snapdiff/snapshots/main", `{"version":99,"tests":[]}`, CodeInvalidSnapshot},
		{"bad label", "/v1/snapdiff/snapshots/..", `{"tests":[]}`, CodeInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, tt.path, []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHandlers_HandleDiff(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	body, err := json.Marshal(DiffRequest{
		Baseline: snap(
			snapshot.TestRecord{ID: "t::a", Outcome: "passed", Duration: 1.0},
			snapshot.TestRecord{ID: "t::b", Outcome: "failed", Sig: "abc"},
		),
		Current: snap(
			snapshot.TestRecord{ID: "t::a", Outcome: "failed", Duration: 1.0, Sig: "deadbeef0000"},
			snapshot.TestRecord{ID: "t::b", Outcome: "passed"},
			snapshot.TestRecord{ID: "t::c", Outcome: "passed"},
		),
	})
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/v1/snapdiff/diff", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report diff.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.NewFailures)
	assert.Equal(t, 1, report.Summary.Fixed)
	assert.Equal(t, 1, report.Summary.Vanished)
	assert.Equal(t, 1, report.Summary.NewPasses)
	require.Len(t, report.NewPasses, 1)
	assert.Equal(t, "t::c", report.NewPasses[0].ID)
	require.Len(t, report.NewFailures, 1)
	assert.Equal(t, "t::a", report.NewFailures[0].ID)
	assert.Equal(t, 3, report.ImpactScore)
}

func TestHandlers_HandleDiff_Thresholds(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	ratio := 1.1
	abs := 0.0
	body, err := json.Marshal(DiffRequest{
		Baseline:    snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed", Duration: 1.0}),
		Current:     snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed", Duration: 1.2}),
		SlowerRatio: &ratio,
		SlowerAbs:   &abs,
	})
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/v1/snapdiff/diff", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report diff.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.Slower)
}

func TestHandlers_HandleDiff_Invalid(t *testing.T) {
	router := setupTestRouter(store.NewMemoryStore())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `nope`, CodeInvalidRequest},
		{"missing current", `{"baseline":{"tests":[]}}`, CodeInvalidRequest},
		{"negative ratio", `{"current":{"tests":[]},"slower_ratio":-1}`, CodeInvalidRequest},
		{"empty id", `{"current":{"tests":[{"id":"","outcome":"failed"}]}}`, CodeInvalidSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/snapdiff/diff", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestHandlers_HandleGate(t *testing.T) {
	ctx := context.Background()

	t.Run("fails on new failure", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Put(ctx, "main", snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed"})))
		require.NoError(t, s.Put(ctx, "pr", snap(snapshot.TestRecord{ID: "t::a", Outcome: "failed", Sig: "x"})))
		router := setupTestRouter(s)

		w := do(t, router, http.MethodPost, "/v1/snapdiff/gate/main/pr", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp GateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Pass)
		assert.Equal(t, string(gate.FailOnNewFailures), resp.FailOn)
		assert.True(t, strings.HasPrefix(resp.Summary, "[snapdiff] new_failures=1"))
		require.NotNil(t, resp.Report)
		assert.Equal(t, 1, resp.Report.Summary.NewFailures)
		assert.Contains(t, resp.Markdown, "**Status: FAIL**")
	})

	t.Run("flake scores in body filter failures", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Put(ctx, "main", snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed"})))
		require.NoError(t, s.Put(ctx, "pr", snap(snapshot.TestRecord{ID: "t::a", Outcome: "failed"})))
		router := setupTestRouter(s)

		w := do(t, router, http.MethodPost, "/v1/snapdiff/gate/main/pr",
			[]byte(`{"flake_scores":{"t::a":0.5}}`))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp GateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Pass)
	})

	t.Run("missing baseline updates it", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.Put(ctx, "pr", snap(snapshot.TestRecord{ID: "t::a", Outcome: "passed"})))
		router := setupTestRouter(s, gate.WithUpdateBaseline(true))

		w := do(t, router, http.MethodPost, "/v1/snapdiff/gate/main/pr", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp GateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Pass)
		assert.True(t, resp.Skipped)
		assert.True(t, resp.BaselineUpdated)
		assert.Nil(t, resp.Report)

		_, err := s.Get(ctx, "main")
		assert.NoError(t, err)
	})

	t.Run("missing current", func(t *testing.T) {
		router := setupTestRouter(store.NewMemoryStore())

		w := do(t, router, http.MethodPost, "/v1/snapdiff/gate/main/pr", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		router := setupTestRouter(store.NewMemoryStore())

		w := do(t, router, http.MethodPost, "/v1/snapdiff/gate/main/pr", []byte(`{`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNewRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("snapdiff_up 1\n"))
	})
	router := NewRouter("snapdiff-test", NewHandlers(store.NewMemoryStore()), metrics)

	w := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "snapdiff_up 1")

	w = do(t, router, http.MethodGet, "/v1/snapdiff/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	noMetrics := NewRouter("snapdiff-test", NewHandlers(store.NewMemoryStore()), nil)
	w = do(t, noMetrics, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
