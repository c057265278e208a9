// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dumroo-ai/rosterquery/services/roster"
)

// Expr is a compiled boolean filter expression over row columns.
//
// Description:
//
//	The vocabulary is the one the interpreter prompt requests: column
//	comparisons (== != > < >= <=) joined with & / | (word forms "and"/"or"
//	are accepted too), with optional parentheses. String literals may be
//	single-quoted, double-quoted, or bare words. Compilation validates
//	column references against the dataset's columns, so a malformed or
//	hallucinated expression fails fast and the executor can degrade to the
//	unfiltered scoped view.
//
// Thread Safety: A compiled Expr is immutable; safe for concurrent use.
type Expr struct {
	root exprNode
	src  string
}

// CompileExpr parses and validates a filter expression against a column list.
//
// Description:
//
//	Comparisons of the form `class <op> <number>` are rewritten to the
//	grade column at compile time: class is a textual label, and questions
//	that phrase "class 8" almost always mean grade 8. The rewrite only
//	fires when a grade column exists.
//
// Outputs:
//   - *Expr: The compiled expression.
//   - error: Non-nil for syntax errors, unsupported operators, or
//     references to columns the dataset does not have.
func CompileExpr(src string, columns []string) (*Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("expr: empty expression")
	}

	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	p := &exprParser{tokens: tokens, columns: known}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("expr: unexpected token %q", p.peek().text)
	}
	return &Expr{root: root, src: src}, nil
}

// Eval evaluates the expression against a single row. Rows missing a
// referenced column simply fail the comparison; evaluation never errors.
func (e *Expr) Eval(row roster.Row) bool {
	return e.root.eval(row)
}

// String returns the original source text of the expression.
func (e *Expr) String() string {
	return e.src
}

// =============================================================================
// AST
// =============================================================================

type exprNode interface {
	eval(row roster.Row) bool
}

type andNode struct{ left, right exprNode }

func (n andNode) eval(row roster.Row) bool { return n.left.eval(row) && n.right.eval(row) }

type orNode struct{ left, right exprNode }

func (n orNode) eval(row roster.Row) bool { return n.left.eval(row) || n.right.eval(row) }

// cmpNode is a single column comparison.
type cmpNode struct {
	column  string
	op      string
	literal string
	numeric bool    // literal parsed as a number
	numval  float64 // numeric literal value
}

func (n cmpNode) eval(row roster.Row) bool {
	if n.numeric {
		if v, ok := roster.Float(row, n.column); ok {
			return compareFloats(v, n.op, n.numval)
		}
		// Column value is not numeric; fall through to string comparison
		// against the literal's original text.
	}

	s, ok := roster.Text(row, n.column)
	if !ok {
		return false
	}
	switch n.op {
	case "==":
		return strings.EqualFold(strings.TrimSpace(s), n.literal)
	case "!=":
		return !strings.EqualFold(strings.TrimSpace(s), n.literal)
	default:
		// Ordering comparisons need numbers on both sides.
		return false
	}
}

func compareFloats(a float64, op string, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	default:
		return false
	}
}

// =============================================================================
// Parser
// =============================================================================

type exprParser struct {
	tokens  []exprToken
	pos     int
	columns map[string]bool
}

func (p *exprParser) eof() bool       { return p.pos >= len(p.tokens) }
func (p *exprParser) peek() exprToken { return p.tokens[p.pos] }
func (p *exprParser) next() exprToken { t := p.tokens[p.pos]; p.pos++; return t }

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if p.eof() {
		return nil, fmt.Errorf("expr: unexpected end of expression")
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expr: missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (exprNode, error) {
	if p.eof() || p.peek().kind != tokIdent {
		return nil, fmt.Errorf("expr: expected column name, got %q", p.peekText())
	}
	column := strings.ToLower(p.next().text)

	if p.eof() || p.peek().kind != tokOp {
		return nil, fmt.Errorf("expr: expected comparison operator after %q", column)
	}
	op := p.next().text

	if p.eof() {
		return nil, fmt.Errorf("expr: expected value after %q %s", column, op)
	}
	lit := p.next()
	if lit.kind != tokIdent && lit.kind != tokNumber && lit.kind != tokString {
		return nil, fmt.Errorf("expr: expected value, got %q", lit.text)
	}

	node := cmpNode{column: column, op: op, literal: lit.text}
	if f, err := strconv.ParseFloat(lit.text, 64); err == nil && lit.kind != tokString {
		node.numeric = true
		node.numval = f
	}

	// Questions often say "class 8" when the dataset calls that the grade;
	// class holds section labels, not numbers.
	if node.column == roster.ColumnClass && node.numeric && p.columns[roster.ColumnGrade] {
		node.column = roster.ColumnGrade
	}

	if !p.columns[node.column] {
		return nil, fmt.Errorf("expr: unknown column %q", node.column)
	}
	return node, nil
}

func (p *exprParser) peekText() string {
	if p.eof() {
		return "<end>"
	}
	return p.peek().text
}

// =============================================================================
// Tokenizer
// =============================================================================

type exprTokenKind int

const (
	tokIdent exprTokenKind = iota
	tokNumber
	tokString
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type exprToken struct {
	kind exprTokenKind
	text string
}

func tokenize(src string) ([]exprToken, error) {
	var tokens []exprToken
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, exprToken{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, exprToken{kind: tokRParen, text: ")"})
			i++

		case r == '&':
			i++
			if i < len(runes) && runes[i] == '&' {
				i++
			}
			tokens = append(tokens, exprToken{kind: tokAnd, text: "&"})
		case r == '|':
			i++
			if i < len(runes) && runes[i] == '|' {
				i++
			}
			tokens = append(tokens, exprToken{kind: tokOr, text: "|"})

		case r == '=' || r == '!' || r == '>' || r == '<':
			start := i
			i++
			if i < len(runes) && runes[i] == '=' {
				i++
			}
			op := string(runes[start:i])
			if op == "=" {
				// Single = is almost always a typo for ==; accept it.
				op = "=="
			}
			if op == "!" {
				return nil, fmt.Errorf("expr: unsupported operator %q", op)
			}
			tokens = append(tokens, exprToken{kind: tokOp, text: op})

		case r == '\'' || r == '"':
			quote := r
			i++
			start := i
			for i < len(runes) && runes[i] != quote {
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("expr: unterminated string literal")
			}
			tokens = append(tokens, exprToken{kind: tokString, text: string(runes[start:i])})
			i++

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, exprToken{kind: tokNumber, text: string(runes[start:i])})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			word := string(runes[start:i])
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, exprToken{kind: tokAnd, text: "&"})
			case "or":
				tokens = append(tokens, exprToken{kind: tokOr, text: "|"})
			default:
				tokens = append(tokens, exprToken{kind: tokIdent, text: word})
			}

		default:
			return nil, fmt.Errorf("expr: unexpected character %q", string(r))
		}
	}
	return tokens, nil
}
