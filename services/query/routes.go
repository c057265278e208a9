// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all query routes with the router.
//
// Description:
//
//	Registers the /v1 query endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Core Endpoints:
//
//	POST /v1/query - Answer a natural-language roster question
//	GET  /v1/stats - Summarize records visible to a role
//
// Health Endpoints:
//
//	GET /v1/health - Liveness
//	GET /v1/ready - Readiness (dataset loaded)
//	GET /v1/info - Service description
//
// Debug Endpoints:
//
//	GET /v1/debug/cache - Condition cache counters
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.POST("/query", handlers.HandleQuery)
	rg.GET("/stats", handlers.HandleStats)

	rg.GET("/health", handlers.HandleHealth)
	rg.GET("/ready", handlers.HandleReady)
	rg.GET("/info", handlers.HandleInfo)

	if handlers.Debug {
		rg.GET("/debug/cache", handlers.HandleCacheStats)
	}
}
