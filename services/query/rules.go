// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleVocabulary holds the keyword lists driving the rule-based interpreter.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RuleVocabulary struct {
	SuperlativeHigh    []string `yaml:"superlative_high"`
	SuperlativeLow     []string `yaml:"superlative_low"`
	NegatedSubmission  []string `yaml:"negated_submission"`
	PositiveSubmission []string `yaml:"positive_submission"`
	ClassMentions      []string `yaml:"class_mentions"`
	GradeMentions      []string `yaml:"grade_mentions"`
}

var (
	vocabOnce sync.Once
	vocab     RuleVocabulary
	vocabErr  error
)

// loadVocabulary parses the embedded rules.yaml once and caches the result.
func loadVocabulary() (RuleVocabulary, error) {
	vocabOnce.Do(func() {
		if err := yaml.Unmarshal(defaultRulesYAML, &vocab); err != nil {
			vocabErr = fmt.Errorf("parsing rules.yaml: %w", err)
		}
	})
	return vocab, vocabErr
}

// gradePattern matches "grade 8", "grade  10" etc. — the word grade
// followed by an integer.
var gradePattern = regexp.MustCompile(`\bgrade\s+(\d+)\b`)

// RuleInterpreter maps question text to a structured Condition with
// deterministic keyword heuristics. It is the offline fallback for the
// model-backed path and never fails, never blocks.
//
// Thread Safety: RuleInterpreter is safe for concurrent use.
type RuleInterpreter struct {
	vocab RuleVocabulary
}

// NewRuleInterpreter builds a RuleInterpreter from the embedded vocabulary.
//
// Outputs:
//   - *RuleInterpreter: The interpreter.
//   - error: Non-nil only when the embedded rules.yaml is unparsable, which
//     is a build defect, not a runtime condition.
func NewRuleInterpreter() (*RuleInterpreter, error) {
	v, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	return &RuleInterpreter{vocab: v}, nil
}

// Interpret maps a question to a Condition.
//
// Description:
//
//	Case-insensitive keyword matching in fixed priority order, first match
//	wins:
//
//	  1. superlative-high keywords  -> global max over the score column
//	  2. superlative-low keywords   -> global min over the score column
//	  3. negated-submission phrases -> homework_submitted == "No"
//	  4. "submitted" (no negation)  -> homework_submitted == "Yes"
//	  5. "absent" (when an attendance column exists) -> attendance == "Absent"
//	  6. "grade N"                  -> grade == N
//	  7. no match                   -> empty filter (role scope only)
//
//	This is a pure function of (question, columns); repeated calls with the
//	same inputs return the same Condition.
func (ri *RuleInterpreter) Interpret(question string, columns []string) Condition {
	q := strings.ToLower(question)

	if containsAny(q, ri.vocab.SuperlativeHigh) {
		return GlobalAggregate(OpMax, scoreColumn(columns))
	}
	if containsAny(q, ri.vocab.SuperlativeLow) {
		return GlobalAggregate(OpMin, scoreColumn(columns))
	}
	if containsAny(q, ri.vocab.NegatedSubmission) {
		return Filter(fmt.Sprintf("%s == 'No'", roster.ColumnHomework))
	}
	if containsAny(q, ri.vocab.PositiveSubmission) {
		return Filter(fmt.Sprintf("%s == 'Yes'", roster.ColumnHomework))
	}
	if strings.Contains(q, "absent") && hasColumn(columns, roster.ColumnAttendance) {
		return Filter(fmt.Sprintf("%s == 'Absent'", roster.ColumnAttendance))
	}
	if m := gradePattern.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return Filter(fmt.Sprintf("%s == %d", roster.ColumnGrade, n))
		}
	}
	return EmptyFilter()
}

// WantsHighest reports whether the question carries a superlative-high
// keyword. The executor uses this for the topper overlay and the
// unresolved-operation fallback.
func (ri *RuleInterpreter) WantsHighest(question string) bool {
	return containsAny(strings.ToLower(question), ri.vocab.SuperlativeHigh)
}

// WantsLowest reports whether the question carries a superlative-low keyword.
func (ri *RuleInterpreter) WantsLowest(question string) bool {
	return containsAny(strings.ToLower(question), ri.vocab.SuperlativeLow)
}

// MentionsClass reports whether the question refers to class/section.
func (ri *RuleInterpreter) MentionsClass(question string) bool {
	return containsAny(strings.ToLower(question), ri.vocab.ClassMentions)
}

// MentionsGrade reports whether the question refers to grade.
func (ri *RuleInterpreter) MentionsGrade(question string) bool {
	return containsAny(strings.ToLower(question), ri.vocab.GradeMentions)
}

// scoreColumn picks the aggregation target: the conventional numeric score
// column if present, otherwise the last listed column. The fallback is a
// safety net so interpretation always produces a usable variant.
func scoreColumn(columns []string) string {
	for _, c := range columns {
		if c == roster.ColumnQuizScore {
			return c
		}
	}
	if len(columns) > 0 {
		return columns[len(columns)-1]
	}
	return roster.ColumnQuizScore
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
