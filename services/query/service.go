// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

var serviceTracer = otel.Tracer("rosterquery.query")

// ErrNoDataset indicates the roster store has not loaded a dataset yet.
var ErrNoDataset = errors.New("query: no roster dataset loaded")

// Service runs the full question-to-answer pipeline.
//
// Description:
//
//	A request flows scope -> interpret -> execute: the requester's role
//	narrows the dataset first, the interpreter turns the question into a
//	structured Condition (model first, rules as fallback), and the executor
//	applies the condition to the scoped view. Interpretation and execution
//	are best-effort; only a missing dataset or an empty question fails a
//	request outright.
//
// Thread Safety: Service is safe for concurrent use. The roster store hands
// out immutable snapshots and sessions serialize their own appends.
type Service struct {
	Store       *roster.Store
	Sessions    *SessionStore
	Interpreter *ModelInterpreter
	Executor    *Executor
}

// NewService wires a query service over a roster store and an optional
// completion client. A nil rules interpreter is built fresh.
func NewService(store *roster.Store, interp *ModelInterpreter) *Service {
	return &Service{
		Store:       store,
		Sessions:    NewSessionStore(0),
		Interpreter: interp,
		Executor:    &Executor{Rules: interp.Rules},
	}
}

// Request is a single natural-language question with its requester scope.
type Request struct {
	Question  string
	Role      roster.Role
	SessionID string
}

// Result is the answer to one question.
//
// Description:
//
//	Condition is the human-readable rendering of the structured condition
//	that produced the rows. Results are copies of the matching rows, Count
//	is len(Results), and Timestamp marks when execution finished.
type Result struct {
	Condition string       `json:"condition"`
	Results   []roster.Row `json:"results"`
	Count     int          `json:"count"`
	Timestamp time.Time    `json:"timestamp"`

	// Debug fields, populated only when the service runs in debug mode.
	RawCompletion   string     `json:"raw_completion,omitempty"`
	ParsedCondition *Condition `json:"parsed_condition,omitempty"`

	fromModel bool
}

// FromModel reports whether the condition came from the language model
// rather than the rule fallback or the cache.
func (r *Result) FromModel() bool { return r.fromModel }

// Query answers one question against the current roster snapshot.
func (s *Service) Query(ctx context.Context, req Request) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "query.Service.Query",
		trace.WithAttributes(
			attribute.String("query.session_id", req.SessionID),
			attribute.Int("query.question_length", len(req.Question)),
		))
	defer span.End()

	if req.Question == "" {
		queriesTotal.WithLabelValues(outcomeBadRequest).Inc()
		return nil, fmt.Errorf("query: question must not be empty")
	}

	ds := s.Store.Current()
	if ds == nil {
		queriesTotal.WithLabelValues(outcomeUnavailable).Inc()
		return nil, ErrNoDataset
	}

	scoped := roster.Scope(ds.View(), req.Role)
	span.SetAttributes(
		attribute.Int("query.total_rows", ds.View().Len()),
		attribute.Int("query.scoped_rows", scoped.Len()),
	)

	// An empty role scope is answered, not erred: the caller simply has no
	// records to see, so no interpretation is attempted at all.
	var interp Interpretation
	if scoped.Len() == 0 {
		interp = Interpretation{Condition: EmptyScope()}
	} else {
		var sess *Session
		if req.SessionID != "" {
			sess = s.Sessions.GetOrCreate(req.SessionID)
		}
		interp = s.Interpreter.Interpret(ctx, req.Question, ds.Columns(), sess)
	}
	cond := interp.Condition

	result := s.Executor.Execute(scoped, cond, req.Question)

	slog.Info("Query answered",
		slog.String("session_id", req.SessionID),
		slog.String("condition", cond.String()),
		slog.Bool("from_model", interp.FromModel),
		slog.Int("scoped", scoped.Len()),
		slog.Int("matched", result.Len()),
	)

	outcome := outcomeOK
	if cond.Kind == KindEmptyScope {
		outcome = outcomeEmptyScope
	}
	queriesTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("query.condition", cond.String()),
		attribute.Bool("query.from_model", interp.FromModel),
		attribute.Int("query.result_rows", result.Len()),
	)

	return &Result{
		Condition:       cond.String(),
		Results:         result.Rows(),
		Count:           result.Len(),
		Timestamp:       time.Now().UTC(),
		RawCompletion:   interp.Raw,
		ParsedCondition: &cond,
		fromModel:       interp.FromModel,
	}, nil
}

// Stats summarizes the dataset the given role is allowed to see.
func (s *Service) Stats(role roster.Role) (*roster.Stats, error) {
	ds := s.Store.Current()
	if ds == nil {
		return nil, ErrNoDataset
	}
	stats := roster.Summarize(ds, role)
	return &stats, nil
}
