// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dumroo-ai/rosterquery/services/llm"
	"github.com/dumroo-ai/rosterquery/services/roster"
)

// defaultCompletionTimeout bounds a completion call when no timeout is
// configured. The provider's own client timeout is longer; this one decides
// when the pipeline stops waiting and falls back to rules.
const defaultCompletionTimeout = 15 * time.Second

// ModelInterpreter resolves questions into Conditions via an external
// text-completion provider, falling back to the rule-based interpreter on
// any failure.
//
// Description:
//
//	The completion call is the only blocking operation in the pipeline; it
//	is bounded by Timeout. Errors, timeouts, empty completions, and
//	unparsable output all resolve the same way: the rule-based path runs
//	with the same question and columns, and the caller never observes the
//	underlying failure.
//
// Thread Safety: ModelInterpreter is safe for concurrent use.
type ModelInterpreter struct {
	// Client is the completion provider. Nil means model interpretation is
	// disabled and every question takes the rule path.
	Client llm.CompletionClient

	// Rules is the mandatory fallback interpreter.
	Rules *RuleInterpreter

	// Cache, when non-nil, memoizes context-free interpretations (those
	// made with no session history, where the prompt is a pure function of
	// question and columns).
	Cache *ConditionCache

	// Timeout bounds each completion call. Zero uses defaultCompletionTimeout.
	Timeout time.Duration
}

// Interpretation is the outcome of resolving one question.
type Interpretation struct {
	Condition Condition

	// Raw is the provider's completion text before cleaning, empty when the
	// rule path resolved the question.
	Raw string

	// FromModel reports whether the model (or the cache of model output)
	// produced the condition.
	FromModel bool
}

// Interpret resolves a question into a Condition and records the exchange
// in the session history.
//
// Description:
//
//	The resolution pipeline: build a prompt embedding the column list and bounded
//	conversation history, request a completion, strip code fences, then
//	either parse a JSON object into a structured condition (type defaults
//	to filter) or treat the whole cleaned text as a filter expression.
//	Every failure path degrades to the rule-based interpreter.
func (mi *ModelInterpreter) Interpret(ctx context.Context, question string, columns []string, sess *Session) Interpretation {
	history := sess.History()

	result := mi.resolve(ctx, question, columns, history)
	sess.Append(question, result.Condition)
	return result
}

func (mi *ModelInterpreter) resolve(ctx context.Context, question string, columns []string, history []Exchange) Interpretation {
	if mi.Client == nil {
		interpretationsTotal.WithLabelValues("rules_fallback").Inc()
		return Interpretation{Condition: mi.Rules.Interpret(question, columns)}
	}

	contextFree := len(history) == 0
	if contextFree && mi.Cache != nil {
		if cond, ok := mi.Cache.Get(question, columns, mi.Client.Model()); ok {
			interpretationsTotal.WithLabelValues("cache").Inc()
			return Interpretation{Condition: cond, FromModel: true}
		}
	}

	timeout := mi.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := mi.Client.Complete(callCtx, BuildPrompt(question, columns, history))
	completionLatencySeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Warn("Completion failed, falling back to rule interpreter",
			slog.String("error", llm.SafeLogString(err.Error())),
		)
		interpretationsTotal.WithLabelValues("rules_fallback").Inc()
		return Interpretation{Condition: mi.Rules.Interpret(question, columns)}
	}

	cond := ParseCompletion(raw, columns)
	interpretationsTotal.WithLabelValues("model").Inc()

	if contextFree && mi.Cache != nil {
		mi.Cache.Put(question, columns, mi.Client.Model(), cond)
	}

	slog.Debug("Model interpretation resolved",
		slog.String("kind", cond.Kind.String()),
		slog.String("condition", cond.String()),
	)
	return Interpretation{Condition: cond, Raw: raw, FromModel: true}
}

// =============================================================================
// Prompt Building
// =============================================================================

// maxPromptHistory bounds how many past exchanges the prompt embeds.
const maxPromptHistory = 10

// BuildPrompt renders the completion prompt for a question.
//
// Description:
//
//	The model sees column names and past exchanges, never row data. It may
//	answer with either a bare filter expression or a JSON object selecting
//	an aggregate/lookup variant; the response contract below mirrors what
//	ParseCompletion accepts.
func BuildPrompt(question string, columns []string, history []Exchange) string {
	var b strings.Builder

	b.WriteString("You are an expert data analyst. Convert the user's natural language question ")
	b.WriteString("about student records into a filter condition or an aggregate instruction.\n\n")

	fmt.Fprintf(&b, "Dataset columns: %s\n\n", strings.Join(columns, ", "))

	b.WriteString(`Rules:
1. Return ONLY the condition, no explanations and no code fences.
2. For a plain filter, return a condition string: column == value, column > value, etc.
   Use & for AND, | for OR. String values use quotes: homework_submitted == 'No'.
3. For "who scored highest/lowest" style questions, return a JSON object instead:
   {"type": "global_aggregate", "operation": "global_max", "column": "quiz_score"}
   Operations: global_max, global_min, group_max, group_min.
   Grouped example: {"type": "group_aggregate", "operation": "group_max", "column": "quiz_score", "group_by": "class"}
4. For "best among those who ..." questions, return:
   {"type": "conditional_lookup", "condition": "homework_submitted == 'Yes'", "column": "quiz_score"}
5. If the question needs no filter, return an empty string.
`)

	if len(history) > 0 {
		b.WriteString("\nConversation context:\n")
		start := 0
		if len(history) > maxPromptHistory {
			start = len(history) - maxPromptHistory
		}
		for _, ex := range history[start:] {
			fmt.Fprintf(&b, "User: %s\nCondition: %s\n", ex.Question, ex.Condition.String())
		}
	}

	fmt.Fprintf(&b, "\nUser question: %s\n", question)
	b.WriteString("\nReturn ONLY the condition or JSON object, nothing else.")

	return b.String()
}

// =============================================================================
// Completion Parsing
// =============================================================================

// modelCondition is the JSON shape the prompt asks the model to emit.
// Both "condition" and "expr" are accepted for the expression field because
// models alternate between them.
type modelCondition struct {
	Type      string `json:"type"`
	Operation string `json:"operation"`
	Column    string `json:"column"`
	GroupBy   string `json:"group_by"`
	Condition string `json:"condition"`
	Expr      string `json:"expr"`
}

// ParseCompletion turns raw completion text into a Condition.
//
// Description:
//
//	Strips code-fence markers and a leading language tag, then attempts to
//	parse a JSON object; a parsed object is interpreted per its type tag
//	(defaulting to filter). Anything that is not a JSON object becomes a
//	filter expression verbatim. This function never fails: the worst
//	completion yields a filter whose expression the executor will reject
//	and degrade on.
func ParseCompletion(raw string, columns []string) Condition {
	text := CleanCompletion(raw)
	if text == "" {
		return EmptyFilter()
	}

	if strings.HasPrefix(text, "{") {
		var mc modelCondition
		if err := json.Unmarshal([]byte(text), &mc); err == nil {
			return conditionFromModel(mc, columns)
		}
		// Fall through: a brace-shaped completion that is not valid JSON is
		// treated as expression text like everything else.
	}

	return Filter(text)
}

// CleanCompletion strips markdown fences, a leading language tag, wrapping
// quotes, and the "no condition" spellings models use for an empty answer.
func CleanCompletion(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, `'"`)
	text = strings.TrimSpace(text)

	switch strings.ToLower(text) {
	case "no condition", "n/a", "none", "null":
		return ""
	}
	return text
}

// conditionFromModel maps a decoded JSON object onto a Condition variant.
func conditionFromModel(mc modelCondition, columns []string) Condition {
	expr := mc.Condition
	if expr == "" {
		expr = mc.Expr
	}

	typ := strings.ToLower(strings.TrimSpace(mc.Type))
	op := strings.ToLower(strings.TrimSpace(mc.Operation))

	// No type tag: an operation implies an aggregate, otherwise filter.
	if typ == "" {
		if op != "" {
			return aggregateFromOp(op, mc, columns)
		}
		return Filter(expr)
	}

	switch typ {
	case "filter":
		return Filter(expr)

	case "global_aggregate", "group_aggregate", "aggregate":
		return aggregateFromOp(op, mc, columns)

	case "conditional_lookup", "lookup", "conditional_filter":
		column := mc.Column
		if column == "" {
			column = scoreColumn(columns)
		}
		return ConditionalLookup(expr, column)

	default:
		// Unknown type tag: preserve it for the executor's keyword fallback.
		return Condition{
			Kind:    KindGlobalAggregate,
			RawOp:   typ,
			Column:  mc.Column,
			GroupBy: mc.GroupBy,
		}
	}
}

// aggregateFromOp resolves the operation token into the right aggregate
// variant. Unrecognized operations keep their raw token so the executor can
// re-derive intent from the question.
func aggregateFromOp(op string, mc modelCondition, columns []string) Condition {
	column := mc.Column
	if column == "" {
		column = scoreColumn(columns)
	}

	switch op {
	case "global_max", "max":
		return GlobalAggregate(OpMax, column)
	case "global_min", "min":
		return GlobalAggregate(OpMin, column)
	case "group_max":
		return GroupAggregate(OpMax, column, groupByOrClass(mc.GroupBy))
	case "group_min":
		return GroupAggregate(OpMin, column, groupByOrClass(mc.GroupBy))
	default:
		return Condition{
			Kind:    KindGlobalAggregate,
			RawOp:   op,
			Column:  column,
			GroupBy: mc.GroupBy,
		}
	}
}

func groupByOrClass(groupBy string) string {
	if groupBy == "" {
		return roster.ColumnClass
	}
	return strings.ToLower(groupBy)
}
