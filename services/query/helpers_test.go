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
	"strings"
	"testing"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

const sampleCSV = `name,grade,class,quiz_score,homework_submitted
Anya,8,A,90,No
Ben,8,A,70,Yes
Chitra,8,B,85,Yes
Dev,9,A,60,No
`

func sampleDataset(t *testing.T) *roster.Dataset {
	t.Helper()
	ds, err := roster.Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ds
}

func mustParseCSV(t *testing.T, csv string) *roster.Dataset {
	t.Helper()
	ds, err := roster.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ds
}

func testRules(t *testing.T) *RuleInterpreter {
	t.Helper()
	ri, err := NewRuleInterpreter()
	if err != nil {
		t.Fatalf("NewRuleInterpreter failed: %v", err)
	}
	return ri
}

// rowNames extracts the name column from a view, preserving order.
func rowNames(v roster.View) []string {
	names := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if s, ok := roster.Text(v.Row(i), "name"); ok {
			names = append(names, s)
		}
	}
	return names
}

func sameNames(got roster.View, want ...string) bool {
	names := rowNames(got)
	if len(names) != len(want) {
		return false
	}
	for i := range names {
		if names[i] != want[i] {
			return false
		}
	}
	return true
}

// stubClient returns a canned completion or error. Test double for the
// completion provider.
type stubClient struct {
	reply string
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubClient) Model() string { return "stub-model" }

var errProviderDown = errors.New("provider unreachable")
