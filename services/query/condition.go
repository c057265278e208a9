// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package query implements the question-to-result pipeline: interpreting a
// natural-language question into a structured Condition (model-backed with a
// deterministic rule fallback) and executing that condition against a
// role-scoped view of the roster.
package query

import "fmt"

// Kind identifies which variant of Condition is active.
//
// Description:
//
//	Condition is a closed sum type: exactly one Kind per value, dispatched
//	exhaustively in the executor. New variants require touching every
//	switch, which is the point — the older ad-hoc dictionary encoding let
//	unknown operators drift in silently.
type Kind int

const (
	// KindFilter selects rows matching a boolean expression. An empty
	// expression means no restriction beyond role scope.
	KindFilter Kind = iota

	// KindGlobalAggregate selects rows whose column equals the view-wide
	// max or min.
	KindGlobalAggregate

	// KindGroupAggregate selects rows whose column equals the max or min
	// within their group_by partition.
	KindGroupAggregate

	// KindConditionalLookup filters first, then selects rows at the max of
	// a column within the surviving subset.
	KindConditionalLookup

	// KindEmptyScope is the sentinel for "the scoped dataset was empty";
	// execution short-circuits to an empty result.
	KindEmptyScope
)

// String returns the variant tag name.
func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindGlobalAggregate:
		return "global_aggregate"
	case KindGroupAggregate:
		return "group_aggregate"
	case KindConditionalLookup:
		return "conditional_lookup"
	case KindEmptyScope:
		return "empty_scope"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AggOp is the aggregation direction for the aggregate variants.
type AggOp string

const (
	// OpMax selects rows at the maximum of the target column.
	OpMax AggOp = "max"

	// OpMin selects rows at the minimum of the target column.
	OpMin AggOp = "min"
)

// Condition is the structured intermediate representation between question
// interpretation and execution.
//
// Description:
//
//	A Condition is a pure value: it carries no reference to the dataset it
//	will run against. Fields are populated only for their owning variant
//	(Expr for KindFilter; Op/Column and optionally GroupBy for the
//	aggregates; LookupExpr/Column for KindConditionalLookup).
//
//	RawOp preserves the operation token exactly as the model emitted it.
//	When it names an operation outside the supported set, the executor
//	falls back to re-deriving intent from question keywords instead of
//	failing the request.
type Condition struct {
	Kind Kind `json:"kind"`

	// Expr is the boolean filter expression (KindFilter only).
	Expr string `json:"expr,omitempty"`

	// Op is the aggregation direction (aggregate variants only).
	Op AggOp `json:"op,omitempty"`

	// RawOp is the model's original operation token, kept for the
	// unresolved-operation fallback.
	RawOp string `json:"raw_op,omitempty"`

	// Column is the target column for aggregates and lookups.
	Column string `json:"column,omitempty"`

	// GroupBy is the partition column (KindGroupAggregate only).
	GroupBy string `json:"group_by,omitempty"`

	// LookupExpr is the pre-filter expression (KindConditionalLookup only).
	LookupExpr string `json:"lookup_expr,omitempty"`
}

// EmptyFilter returns the trivial condition: no restriction beyond role scope.
func EmptyFilter() Condition {
	return Condition{Kind: KindFilter}
}

// Filter returns a boolean-expression filter condition.
func Filter(expr string) Condition {
	return Condition{Kind: KindFilter, Expr: expr}
}

// GlobalAggregate returns a dataset-wide max/min condition over column.
func GlobalAggregate(op AggOp, column string) Condition {
	return Condition{Kind: KindGlobalAggregate, Op: op, Column: column}
}

// GroupAggregate returns a per-partition max/min condition over column.
func GroupAggregate(op AggOp, column, groupBy string) Condition {
	return Condition{Kind: KindGroupAggregate, Op: op, Column: column, GroupBy: groupBy}
}

// ConditionalLookup returns a filter-then-max condition.
func ConditionalLookup(expr, column string) Condition {
	return Condition{Kind: KindConditionalLookup, LookupExpr: expr, Column: column}
}

// EmptyScope returns the empty-scope sentinel.
func EmptyScope() Condition {
	return Condition{Kind: KindEmptyScope}
}

// IsEmpty reports whether the condition imposes no restriction at all.
func (c Condition) IsEmpty() bool {
	return c.Kind == KindFilter && c.Expr == ""
}

// String renders the condition in the human-readable form echoed back in
// query responses.
func (c Condition) String() string {
	switch c.Kind {
	case KindFilter:
		if c.Expr == "" {
			return ""
		}
		return c.Expr
	case KindGlobalAggregate:
		return fmt.Sprintf("%s(%s)", c.opLabel(), c.Column)
	case KindGroupAggregate:
		return fmt.Sprintf("%s(%s) by %s", c.opLabel(), c.Column, c.GroupBy)
	case KindConditionalLookup:
		return fmt.Sprintf("max(%s) where %s", c.Column, c.LookupExpr)
	case KindEmptyScope:
		return "empty_scope"
	default:
		return c.Kind.String()
	}
}

func (c Condition) opLabel() string {
	op := string(c.Op)
	if op == "" {
		op = c.RawOp
	}
	if op == "" {
		op = "max"
	}
	return op
}
