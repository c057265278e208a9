// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package roster holds the student-records dataset: an immutable in-memory
// table loaded from CSV, read through lightweight views. A View is an index
// list into its dataset, so scoping and filtering never copy row data and
// never mutate the shared table.
package roster

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known column names. The dataset schema is not fixed in advance, but
// these columns carry conventional meaning when present.
const (
	// ColumnGrade is the numeric grade level column. Required.
	ColumnGrade = "grade"

	// ColumnClass is the class/section label column. Required.
	ColumnClass = "class"

	// ColumnQuizScore is the conventional numeric score column.
	ColumnQuizScore = "quiz_score"

	// ColumnHomework is the Yes/No homework submission column.
	ColumnHomework = "homework_submitted"

	// ColumnAttendance is the Present/Absent attendance column.
	ColumnAttendance = "attendance"
)

// Row is a single student record: column name to value. Values are either
// string or float64 depending on the inferred column type.
//
// Rows are shared between a Dataset and every View derived from it. They
// must be treated as read-only after ingestion.
type Row map[string]any

// Dataset is an immutable in-memory table of student records.
//
// Description:
//
//	A Dataset is built once by the CSV loader and never modified afterward.
//	All access goes through View, which carries an index list into the
//	dataset's row slice. Replacing the dataset (e.g. after a file reload)
//	swaps the whole snapshot atomically in Store; in-flight requests keep
//	reading the snapshot they started with.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Dataset struct {
	columns  []string
	numeric  map[string]bool
	rows     []Row
	source   string
	loadedAt time.Time
}

// Columns returns the ordered column names as read from the CSV header.
func (d *Dataset) Columns() []string {
	return d.columns
}

// Len returns the number of rows in the dataset.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Source returns the path the dataset was loaded from, if any.
func (d *Dataset) Source() string {
	return d.source
}

// LoadedAt returns the time the dataset snapshot was built.
func (d *Dataset) LoadedAt() time.Time {
	return d.loadedAt
}

// NumericColumn reports whether every non-empty value in the named column
// parsed as a number at ingest time.
func (d *Dataset) NumericColumn(name string) bool {
	return d.numeric[name]
}

// View returns a view over the full dataset.
func (d *Dataset) View() View {
	indices := make([]int, len(d.rows))
	for i := range indices {
		indices[i] = i
	}
	return View{ds: d, indices: indices}
}

// View is a read-only window onto a subset of a dataset's rows.
//
// Description:
//
//	Views are cheap values: a dataset pointer plus an index list. Filtering
//	a view produces a new view sharing the same backing rows. The zero View
//	is valid and empty.
//
// Thread Safety: A View is immutable; safe for concurrent use.
type View struct {
	ds      *Dataset
	indices []int
}

// Len returns the number of rows visible through the view.
func (v View) Len() int {
	return len(v.indices)
}

// Row returns the i-th visible row. The returned map is shared and must not
// be modified.
func (v View) Row(i int) Row {
	return v.ds.rows[v.indices[i]]
}

// Columns returns the dataset's ordered column names, or nil for the zero view.
func (v View) Columns() []string {
	if v.ds == nil {
		return nil
	}
	return v.ds.columns
}

// HasColumn reports whether the named column exists in the backing dataset.
func (v View) HasColumn(name string) bool {
	if v.ds == nil {
		return false
	}
	for _, c := range v.ds.columns {
		if c == name {
			return true
		}
	}
	return false
}

// NumericColumn reports whether the named column was inferred numeric.
func (v View) NumericColumn(name string) bool {
	return v.ds != nil && v.ds.numeric[name]
}

// Select returns a sub-view of the rows for which keep returns true.
func (v View) Select(keep func(Row) bool) View {
	indices := make([]int, 0, len(v.indices))
	for _, idx := range v.indices {
		if keep(v.ds.rows[idx]) {
			indices = append(indices, idx)
		}
	}
	return View{ds: v.ds, indices: indices}
}

// Rows materializes the view as a row slice, preserving order. Used when
// encoding results; the maps are still shared with the dataset.
func (v View) Rows() []Row {
	out := make([]Row, 0, len(v.indices))
	for _, idx := range v.indices {
		out = append(out, v.ds.rows[idx])
	}
	return out
}

// Float extracts a numeric value from a row column.
//
// Outputs:
//   - float64: The numeric value.
//   - bool: False when the column is absent or not parseable as a number.
func Float(row Row, column string) (float64, bool) {
	val, ok := row[column]
	if !ok {
		return 0, false
	}
	switch t := val.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Text extracts a column value as a string. Numeric values are formatted
// without a trailing ".0" so grade 8 reads back as "8".
func Text(row Row, column string) (string, bool) {
	val, ok := row[column]
	if !ok {
		return "", false
	}
	switch t := val.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// DistinctValues returns the sorted distinct string renderings of a column
// across a view. Rows missing the column are skipped.
func DistinctValues(v View, column string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < v.Len(); i++ {
		s, ok := Text(v.Row(i), column)
		if !ok || s == "" {
			continue
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
