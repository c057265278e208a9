// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"log/slog"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

// Executor applies a structured Condition to a role-scoped view.
//
// Description:
//
//	Execution is best-effort and never fatal to a request: malformed filter
//	expressions degrade to the unfiltered scoped view, a failed conditional
//	lookup returns the full scoped view, and an unresolved aggregate
//	operation re-derives intent from the question's keywords. The original
//	question rides along for the topper overlay and that keyword fallback.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	Rules *RuleInterpreter
}

// Execute applies cond to the scoped view and returns the result view.
func (e *Executor) Execute(scoped roster.View, cond Condition, question string) roster.View {
	switch cond.Kind {
	case KindEmptyScope:
		return emptyOf(scoped)

	case KindFilter:
		result := e.applyFilter(scoped, cond.Expr)
		// The overlay must run after filtering: "topper" means best within
		// the already-filtered group, not best overall.
		return e.TopperOverlay(result, question)

	case KindGlobalAggregate:
		if cond.RawOp != "" || !usableColumn(scoped, cond.Column) {
			return e.unresolvedFallback(scoped, cond, question)
		}
		return selectAtExtreme(scoped, cond.Column, cond.Op)

	case KindGroupAggregate:
		if cond.RawOp != "" || !usableColumn(scoped, cond.Column) || !scoped.HasColumn(cond.GroupBy) {
			return e.unresolvedFallback(scoped, cond, question)
		}
		return selectAtGroupExtreme(scoped, cond.Column, cond.GroupBy, cond.Op)

	case KindConditionalLookup:
		return e.applyLookup(scoped, cond)

	default:
		slog.Warn("Unknown condition kind, returning scoped view", slog.Int("kind", int(cond.Kind)))
		return scoped
	}
}

// applyFilter evaluates a boolean expression over every row. An empty
// expression is the scoped view unchanged; a malformed one degrades to the
// unfiltered scoped view rather than failing the request.
func (e *Executor) applyFilter(scoped roster.View, expr string) roster.View {
	if expr == "" {
		return scoped
	}

	compiled, err := CompileExpr(expr, scoped.Columns())
	if err != nil {
		slog.Warn("Filter expression rejected, returning unfiltered scoped view",
			slog.String("expr", expr),
			slog.String("error", err.Error()),
		)
		executionDegradedTotal.Inc()
		return scoped
	}
	return scoped.Select(compiled.Eval)
}

// applyLookup filters first, then selects rows at the max of the lookup
// column within the surviving subset. Any failure along the way returns the
// full scoped view unchanged; a lookup never empties a result on its own.
func (e *Executor) applyLookup(scoped roster.View, cond Condition) roster.View {
	subset := scoped
	if cond.LookupExpr != "" {
		compiled, err := CompileExpr(cond.LookupExpr, scoped.Columns())
		if err != nil {
			slog.Warn("Lookup condition rejected, returning scoped view",
				slog.String("expr", cond.LookupExpr),
				slog.String("error", err.Error()),
			)
			executionDegradedTotal.Inc()
			return scoped
		}
		subset = scoped.Select(compiled.Eval)
	}

	if subset.Len() == 0 || !usableColumn(subset, cond.Column) {
		return scoped
	}

	result := selectAtExtreme(subset, cond.Column, OpMax)
	if result.Len() == 0 {
		return scoped
	}
	return result
}

// TopperOverlay narrows an already-filtered result to the rows at the
// maximum of the score column when the question asks for a superlative.
//
// Description:
//
//	Runs only on filter results, only after filtering, and only when the
//	result actually has a score column — otherwise it is a no-op. It can
//	only narrow a result, never widen it.
func (e *Executor) TopperOverlay(result roster.View, question string) roster.View {
	if !e.Rules.WantsHighest(question) {
		return result
	}
	if !usableColumn(result, roster.ColumnQuizScore) {
		return result
	}
	narrowed := selectAtExtreme(result, roster.ColumnQuizScore, OpMax)
	if narrowed.Len() == 0 {
		return result
	}
	return narrowed
}

// unresolvedFallback re-derives aggregate intent from question keywords when
// the condition's operation or columns cannot be honored as-is.
//
// Description:
//
//	Mirrors the rule interpreter's superlative priority but operates on the
//	scoped view directly: high keywords (or no keyword) mean max, low
//	keywords mean min; the partition is class when the question mentions
//	class/section, grade when it mentions grade, otherwise ungrouped.
func (e *Executor) unresolvedFallback(scoped roster.View, cond Condition, question string) roster.View {
	op := OpMax
	if !e.Rules.WantsHighest(question) && e.Rules.WantsLowest(question) {
		op = OpMin
	}

	column := cond.Column
	if !usableColumn(scoped, column) {
		column = scoreColumn(scoped.Columns())
	}
	if !usableColumn(scoped, column) {
		// Nothing numeric to aggregate over; best effort is the scoped view.
		return scoped
	}

	var groupBy string
	switch {
	case e.Rules.MentionsClass(question) && scoped.HasColumn(roster.ColumnClass):
		groupBy = roster.ColumnClass
	case e.Rules.MentionsGrade(question) && scoped.HasColumn(roster.ColumnGrade):
		groupBy = roster.ColumnGrade
	}

	slog.Debug("Re-derived aggregate from question keywords",
		slog.String("raw_op", cond.RawOp),
		slog.String("op", string(op)),
		slog.String("column", column),
		slog.String("group_by", groupBy),
	)

	if groupBy != "" {
		return selectAtGroupExtreme(scoped, column, groupBy, op)
	}
	return selectAtExtreme(scoped, column, op)
}

// =============================================================================
// Aggregation primitives
// =============================================================================

// selectAtExtreme returns every row whose column equals the view-wide
// max/min. Ties are included, never broken. Rows without a numeric value in
// the column are ignored for the extreme and excluded from the result.
func selectAtExtreme(v roster.View, column string, op AggOp) roster.View {
	extreme, ok := extremeValue(v, column, op)
	if !ok {
		return v
	}
	return v.Select(func(row roster.Row) bool {
		f, ok := roster.Float(row, column)
		return ok && f == extreme
	})
}

// selectAtGroupExtreme returns every row whose column equals the max/min of
// its own group_by partition.
func selectAtGroupExtreme(v roster.View, column, groupBy string, op AggOp) roster.View {
	extremes := make(map[string]float64)
	seen := make(map[string]bool)

	for i := 0; i < v.Len(); i++ {
		row := v.Row(i)
		key, ok := roster.Text(row, groupBy)
		if !ok {
			continue
		}
		f, ok := roster.Float(row, column)
		if !ok {
			continue
		}
		if !seen[key] {
			seen[key] = true
			extremes[key] = f
			continue
		}
		if (op == OpMin && f < extremes[key]) || (op != OpMin && f > extremes[key]) {
			extremes[key] = f
		}
	}

	return v.Select(func(row roster.Row) bool {
		key, ok := roster.Text(row, groupBy)
		if !ok || !seen[key] {
			return false
		}
		f, ok := roster.Float(row, column)
		return ok && f == extremes[key]
	})
}

// extremeValue computes the max/min of a column across a view.
func extremeValue(v roster.View, column string, op AggOp) (float64, bool) {
	var extreme float64
	found := false
	for i := 0; i < v.Len(); i++ {
		f, ok := roster.Float(v.Row(i), column)
		if !ok {
			continue
		}
		if !found {
			extreme = f
			found = true
			continue
		}
		if (op == OpMin && f < extreme) || (op != OpMin && f > extreme) {
			extreme = f
		}
	}
	return extreme, found
}

// usableColumn reports whether a column exists in the view and holds at
// least one numeric value (so an extreme is computable).
func usableColumn(v roster.View, column string) bool {
	if column == "" || !v.HasColumn(column) {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if _, ok := roster.Float(v.Row(i), column); ok {
			return true
		}
	}
	return false
}

// emptyOf returns an empty view sharing scoped's backing dataset.
func emptyOf(v roster.View) roster.View {
	return v.Select(func(roster.Row) bool { return false })
}
