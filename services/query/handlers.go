// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

// Handlers holds the HTTP handlers for the query service.
type Handlers struct {
	Service *Service
	Cache   *ConditionCache

	// Debug exposes raw completions and parsed conditions in responses.
	Debug bool

	startedAt time.Time
	version   string
}

// NewHandlers creates the handler set for a query service.
func NewHandlers(service *Service, cache *ConditionCache, version string, debug bool) *Handlers {
	return &Handlers{
		Service:   service,
		Cache:     cache,
		Debug:     debug,
		startedAt: time.Now().UTC(),
		version:   version,
	}
}

// QueryRequest is the request body for POST /v1/query. All three fields are
// mandatory; a request without a role is rejected rather than scoped to the
// full roster.
type QueryRequest struct {
	Query     string       `json:"query" binding:"required,min=1,max=500"`
	Role      *roster.Role `json:"role" binding:"required"`
	SessionID string       `json:"sessionId" binding:"required"`
}

// ErrorResponse is the uniform error body for every endpoint.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleQuery answers a natural-language question about the roster.
//
// Description:
//
//	Binds the question and requester role, runs the scope -> interpret ->
//	execute pipeline, and returns the matched rows with the condition that
//	produced them. Interpretation failures never surface here; the pipeline
//	degrades internally and still answers.
//
// Response:
//
//	200 OK: Result
//	400 Bad Request: missing or oversized query
//	503 Service Unavailable: roster dataset not loaded
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Rejected query request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, errorBody("query (at most 500 characters), role and sessionId are required", "INVALID_REQUEST"))
		return
	}

	result, err := h.Service.Query(c.Request.Context(), Request{
		Question:  req.Query,
		Role:      *req.Role,
		SessionID: req.SessionID,
	})
	if err != nil {
		if errors.Is(err, ErrNoDataset) {
			c.JSON(http.StatusServiceUnavailable, errorBody("roster data is not available yet", "DATA_UNAVAILABLE"))
			return
		}
		logger.Error("Query pipeline failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, errorBody("internal error while processing the query", "INTERNAL_ERROR"))
		return
	}

	if !h.Debug {
		result.RawCompletion = ""
		result.ParsedCondition = nil
	}
	c.JSON(http.StatusOK, result)
}

// HandleStats summarizes the records visible to the requester's role.
//
// Query Parameters:
//
//	grade: numeric grade scope (optional)
//	class_name: class scope (optional)
//
// Response:
//
//	200 OK: roster.Stats
//	503 Service Unavailable: roster dataset not loaded
func (h *Handlers) HandleStats(c *gin.Context) {
	role, err := roleFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error(), "INVALID_REQUEST"))
		return
	}

	stats, err := h.Service.Stats(role)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("roster data is not available yet", "DATA_UNAVAILABLE"))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleHealth reports liveness. It always succeeds while the process runs.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	})
}

// HandleReady reports readiness: a dataset must be loaded before the
// service can answer queries.
func (h *Handlers) HandleReady(c *gin.Context) {
	ds := h.Service.Store.Current()
	if ds == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "roster dataset not loaded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"records":   ds.Len(),
		"source":    ds.Source(),
		"loaded_at": ds.LoadedAt(),
	})
}

// HandleInfo describes the running service.
func (h *Handlers) HandleInfo(c *gin.Context) {
	info := gin.H{
		"service":    "rosterquery",
		"version":    h.version,
		"started_at": h.startedAt,
		"sessions":   h.Service.Sessions.Len(),
	}
	if ds := h.Service.Store.Current(); ds != nil {
		info["records"] = ds.Len()
		info["columns"] = ds.Columns()
	}
	c.JSON(http.StatusOK, info)
}

// HandleCacheStats exposes condition cache counters. Debug aid.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	if h.Cache == nil {
		c.JSON(http.StatusOK, CacheStats{})
		return
	}
	c.JSON(http.StatusOK, h.Cache.Stats())
}

// roleFromQuery builds a Role from optional query parameters.
func roleFromQuery(c *gin.Context) (roster.Role, error) {
	var role roster.Role
	if err := c.ShouldBindQuery(&role); err != nil {
		return roster.Role{}, errors.New("grade must be numeric")
	}
	return role, nil
}

// errorBody builds the uniform error response.
func errorBody(msg, code string) ErrorResponse {
	return ErrorResponse{
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Header("X-Request-ID", id)
	return id
}
