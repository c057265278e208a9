// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import "testing"

func TestCondition_String(t *testing.T) {
	cases := []struct {
		cond Condition
		want string
	}{
		{EmptyFilter(), ""},
		{Filter("grade == 8"), "grade == 8"},
		{GlobalAggregate(OpMax, "quiz_score"), "max(quiz_score)"},
		{GlobalAggregate(OpMin, "quiz_score"), "min(quiz_score)"},
		{GroupAggregate(OpMax, "quiz_score", "class"), "max(quiz_score) by class"},
		{ConditionalLookup("homework_submitted == 'Yes'", "quiz_score"), "max(quiz_score) where homework_submitted == 'Yes'"},
		{EmptyScope(), "empty_scope"},
	}
	for _, tc := range cases {
		if got := tc.cond.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestCondition_IsEmpty(t *testing.T) {
	if !EmptyFilter().IsEmpty() {
		t.Error("EmptyFilter should be empty")
	}
	if Filter("grade == 8").IsEmpty() {
		t.Error("non-empty filter should not be empty")
	}
	if EmptyScope().IsEmpty() {
		t.Error("empty scope sentinel is a restriction, not an empty condition")
	}
}
