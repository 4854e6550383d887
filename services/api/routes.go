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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all snapdiff routes with the router group.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET    /v1/snapdiff/health - Health check
//	GET    /v1/snapdiff/snapshots - List stored labels
//	GET    /v1/snapdiff/snapshots/:label - Fetch a snapshot
//	PUT    /v1/snapdiff/snapshots/:label - Store a snapshot
//	DELETE /v1/snapdiff/snapshots/:label - Delete a snapshot
//	POST   /v1/snapdiff/diff - Diff two inline snapshots
//	POST   /v1/snapdiff/gate/:baseline/:current - Gate stored snapshots
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	sd := rg.Group("/snapdiff")
	{
		sd.GET("/health", handlers.HandleHealth)

		sd.GET("/snapshots", handlers.HandleListSnapshots)
		sd.GET("/snapshots/:label", handlers.HandleGetSnapshot)
		sd.PUT("/snapshots/:label", handlers.HandlePutSnapshot)
		sd.DELETE("/snapshots/:label", handlers.HandleDeleteSnapshot)

		sd.POST("/diff", handlers.HandleDiff)
		sd.POST("/gate/:baseline/:current", handlers.HandleGate)
	}
}

// NewRouter builds the server engine with recovery and tracing
// middleware. metrics, when non-nil, is served at /metrics.
func NewRouter(serviceName string, handlers *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}
