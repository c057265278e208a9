// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Query Pipeline
// =============================================================================

// Outcome label values for queriesTotal.
const (
	outcomeOK          = "ok"
	outcomeEmptyScope  = "empty_scope"
	outcomeBadRequest  = "bad_request"
	outcomeUnavailable = "unavailable"
)

var (
	// queriesTotal counts handled questions by outcome.
	// Labels: outcome (ok, empty_scope, bad_request, unavailable)
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rosterquery",
		Subsystem: "query",
		Name:      "requests_total",
		Help:      "Total handled query requests by outcome",
	}, []string{"outcome"})

	// interpretationsTotal counts interpretation attempts by path taken.
	// Labels: path (model, rules_fallback, cache)
	interpretationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rosterquery",
		Subsystem: "query",
		Name:      "interpretations_total",
		Help:      "Total question interpretations by resolution path",
	}, []string{"path"})

	// executionDegradedTotal counts filter expressions that failed to
	// compile and degraded to the unfiltered scoped view.
	executionDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rosterquery",
		Subsystem: "query",
		Name:      "execution_degraded_total",
		Help:      "Total executions degraded to the unfiltered scoped view",
	})

	// completionLatencySeconds measures completion-provider round trips,
	// including failed ones.
	completionLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rosterquery",
		Subsystem: "query",
		Name:      "completion_latency_seconds",
		Help:      "Latency of text-completion provider calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// conditionCacheTotal counts cache lookups by result.
	// Labels: result (hit, miss)
	conditionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rosterquery",
		Subsystem: "query",
		Name:      "condition_cache_total",
		Help:      "Condition cache lookups by result",
	}, []string{"result"})
)
