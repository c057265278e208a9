// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"testing"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

func testExecutor(t *testing.T) *Executor {
	t.Helper()
	return &Executor{Rules: testRules(t)}
}

func TestExecutor_EmptyScope(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, EmptyScope(), "anything")
	if got.Len() != 0 {
		t.Errorf("empty scope returned %d rows", got.Len())
	}
}

func TestExecutor_EmptyFilterIsIdentity(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, EmptyFilter(), "show everyone")
	if got.Len() != v.Len() {
		t.Errorf("empty filter returned %d rows, want %d", got.Len(), v.Len())
	}
}

func TestExecutor_Filter(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, Filter("homework_submitted == 'No'"), "who hasn't submitted homework")
	if !sameNames(got, "Anya", "Dev") {
		t.Errorf("filter matched %v, want [Anya Dev]", rowNames(got))
	}
}

func TestExecutor_MalformedFilterDegradesToScopedView(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, Filter("salary >>> nonsense"), "show everyone")
	if got.Len() != v.Len() {
		t.Errorf("degraded filter returned %d rows, want all %d", got.Len(), v.Len())
	}
}

func TestExecutor_GlobalAggregateMax(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, GlobalAggregate(OpMax, "quiz_score"), "who is the topper")
	if !sameNames(got, "Anya") {
		t.Errorf("global max matched %v, want [Anya]", rowNames(got))
	}
}

func TestExecutor_GlobalAggregateIncludesTies(t *testing.T) {
	e := testExecutor(t)
	ds := mustParseCSV(t, `name,grade,class,quiz_score
A,8,A,90
B,8,A,90
C,8,B,70
`)

	got := e.Execute(ds.View(), GlobalAggregate(OpMax, "quiz_score"), "highest score")
	if !sameNames(got, "A", "B") {
		t.Errorf("ties: matched %v, want [A B]", rowNames(got))
	}
}

func TestExecutor_GlobalAggregateNonEmptyOnNonEmptyView(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, GlobalAggregate(OpMax, "quiz_score"), "highest")
	if got.Len() == 0 {
		t.Fatal("global max over a non-empty view must be non-empty")
	}
	max, _ := roster.Float(got.Row(0), "quiz_score")
	for i := 0; i < got.Len(); i++ {
		f, ok := roster.Float(got.Row(i), "quiz_score")
		if !ok || f != max {
			t.Errorf("row %d score %v, want %v", i, f, max)
		}
	}
}

func TestExecutor_GroupAggregate(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	// Per-class maxima: class A has Anya (90) and Dev (60, grade 9);
	// class B has only Chitra (85).
	got := e.Execute(v, GroupAggregate(OpMax, "quiz_score", "class"), "highest in each class")
	if !sameNames(got, "Anya", "Chitra") {
		t.Errorf("group max matched %v, want [Anya Chitra]", rowNames(got))
	}
}

func TestExecutor_GroupAggregateCoversEveryGroup(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, GroupAggregate(OpMax, "quiz_score", "class"), "best per class")

	classes := map[string]bool{}
	for i := 0; i < got.Len(); i++ {
		c, _ := roster.Text(got.Row(i), "class")
		classes[c] = true
	}
	for _, want := range []string{"A", "B"} {
		if !classes[want] {
			t.Errorf("group max missing a row for class %s", want)
		}
	}
}

func TestExecutor_ConditionalLookup(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	// Best score among submitters: Ben (70) and Chitra (85).
	got := e.Execute(v, ConditionalLookup("homework_submitted == 'Yes'", "quiz_score"), "best among submitters")
	if !sameNames(got, "Chitra") {
		t.Errorf("lookup matched %v, want [Chitra]", rowNames(got))
	}
}

func TestExecutor_ConditionalLookupFallsBackOnEmptySubset(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, ConditionalLookup("grade == 12", "quiz_score"), "best in grade 12")
	if got.Len() != v.Len() {
		t.Errorf("empty-subset lookup returned %d rows, want the full view %d", got.Len(), v.Len())
	}
}

func TestExecutor_TopperOverlayNarrowsFilter(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	// Grade 8 filter keeps Anya, Ben, Chitra; "topper" narrows to Anya.
	got := e.Execute(v, Filter("grade == 8"), "who is the topper in grade 8")
	if !sameNames(got, "Anya") {
		t.Errorf("overlay matched %v, want [Anya]", rowNames(got))
	}
}

func TestExecutor_TopperOverlayNoOpWithoutKeyword(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	got := e.Execute(v, Filter("grade == 8"), "show grade 8 students")
	if !sameNames(got, "Anya", "Ben", "Chitra") {
		t.Errorf("matched %v, want the whole grade 8 filter result", rowNames(got))
	}
}

func TestExecutor_TopperOverlayNoOpWithoutScoreColumn(t *testing.T) {
	e := testExecutor(t)
	ds := mustParseCSV(t, `name,grade,class
A,8,A
B,8,B
`)

	got := e.Execute(ds.View(), Filter("grade == 8"), "who is the topper")
	if got.Len() != 2 {
		t.Errorf("overlay without score column returned %d rows, want 2", got.Len())
	}
}

func TestExecutor_UnresolvedOpFallsBackToKeywords(t *testing.T) {
	e := testExecutor(t)
	v := sampleDataset(t).View()

	t.Run("low keyword means min", func(t *testing.T) {
		cond := Condition{Kind: KindGlobalAggregate, RawOp: "arg_min", Column: "quiz_score"}
		got := e.Execute(v, cond, "who has the lowest score")
		if !sameNames(got, "Dev") {
			t.Errorf("matched %v, want [Dev]", rowNames(got))
		}
	})

	t.Run("class mention means group by class", func(t *testing.T) {
		cond := Condition{Kind: KindGlobalAggregate, RawOp: "best_per", Column: "quiz_score"}
		got := e.Execute(v, cond, "highest score in each class")
		if !sameNames(got, "Anya", "Chitra") {
			t.Errorf("matched %v, want per-class maxima [Anya Chitra]", rowNames(got))
		}
	})

	t.Run("no keyword defaults to max", func(t *testing.T) {
		cond := Condition{Kind: KindGlobalAggregate, RawOp: "weird_op", Column: "quiz_score"}
		got := e.Execute(v, cond, "quiz results please")
		if !sameNames(got, "Anya") {
			t.Errorf("matched %v, want [Anya]", rowNames(got))
		}
	})

	t.Run("missing column re-targets the score column", func(t *testing.T) {
		cond := Condition{Kind: KindGlobalAggregate, Op: OpMax, Column: "gpa"}
		got := e.Execute(v, cond, "highest gpa")
		if !sameNames(got, "Anya") {
			t.Errorf("matched %v, want [Anya]", rowNames(got))
		}
	})
}
