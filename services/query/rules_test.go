// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"testing"
)

var ruleColumns = []string{"name", "grade", "class", "quiz_score", "homework_submitted"}

func TestRuleInterpreter_SuperlativeHigh(t *testing.T) {
	ri := testRules(t)

	for _, q := range []string{
		"who is the topper?",
		"who scored the HIGHEST marks",
		"best student in class",
		"maximum quiz score",
	} {
		cond := ri.Interpret(q, ruleColumns)
		if cond.Kind != KindGlobalAggregate || cond.Op != OpMax || cond.Column != "quiz_score" {
			t.Errorf("Interpret(%q) = %+v, want global max over quiz_score", q, cond)
		}
	}
}

func TestRuleInterpreter_SuperlativeLow(t *testing.T) {
	ri := testRules(t)

	cond := ri.Interpret("who got the lowest score", ruleColumns)
	if cond.Kind != KindGlobalAggregate || cond.Op != OpMin {
		t.Errorf("Interpret = %+v, want global min", cond)
	}
}

func TestRuleInterpreter_HomeworkFilters(t *testing.T) {
	ri := testRules(t)

	for _, q := range []string{
		"who hasn't submitted homework",
		"who haven't submitted their homework",
		"students who have not submitted homework",
		"who has not done the homework",
		"homework not submitted",
	} {
		cond := ri.Interpret(q, ruleColumns)
		if cond.Kind != KindFilter || cond.Expr != "homework_submitted == 'No'" {
			t.Errorf("Interpret(%q) = %+v, want negated submission filter", q, cond)
		}
	}

	cond := ri.Interpret("students who submitted homework", ruleColumns)
	if cond.Kind != KindFilter || cond.Expr != "homework_submitted == 'Yes'" {
		t.Errorf("positive submission = %+v", cond)
	}
}

func TestRuleInterpreter_NegationBeatsSubmission(t *testing.T) {
	ri := testRules(t)

	// "not submitted" contains "submitted" too; negation must win.
	cond := ri.Interpret("homework not submitted", ruleColumns)
	if cond.Expr != "homework_submitted == 'No'" {
		t.Errorf("Interpret = %+v, want negated filter", cond)
	}
}

func TestRuleInterpreter_GradeMention(t *testing.T) {
	ri := testRules(t)

	cond := ri.Interpret("show students in grade 8", ruleColumns)
	if cond.Kind != KindFilter || cond.Expr != "grade == 8" {
		t.Errorf("Interpret = %+v, want grade == 8 filter", cond)
	}
}

func TestRuleInterpreter_AbsenceNeedsAttendanceColumn(t *testing.T) {
	ri := testRules(t)

	cond := ri.Interpret("who was absent today", ruleColumns)
	if !cond.IsEmpty() {
		t.Errorf("absent without attendance column = %+v, want empty filter", cond)
	}

	withAttendance := append([]string{}, ruleColumns...)
	withAttendance = append(withAttendance, "attendance")
	cond = ri.Interpret("who was absent today", withAttendance)
	if cond.Expr != "attendance == 'Absent'" {
		t.Errorf("absent with attendance column = %+v", cond)
	}
}

func TestRuleInterpreter_NoMatchIsEmptyFilter(t *testing.T) {
	ri := testRules(t)

	cond := ri.Interpret("tell me about the students", ruleColumns)
	if !cond.IsEmpty() {
		t.Errorf("Interpret = %+v, want empty filter", cond)
	}
}

func TestRuleInterpreter_IsDeterministic(t *testing.T) {
	ri := testRules(t)

	first := ri.Interpret("who is the topper in class A?", ruleColumns)
	for i := 0; i < 5; i++ {
		if got := ri.Interpret("who is the topper in class A?", ruleColumns); got != first {
			t.Fatalf("call %d = %+v, first = %+v", i, got, first)
		}
	}
}

func TestRuleInterpreter_ScoreColumnFallback(t *testing.T) {
	ri := testRules(t)

	// Without quiz_score the last column becomes the aggregation target.
	cond := ri.Interpret("highest marks", []string{"name", "grade", "total"})
	if cond.Column != "total" {
		t.Errorf("Column = %q, want total", cond.Column)
	}
}
