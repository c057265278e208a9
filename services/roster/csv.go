// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load reads a CSV file into an immutable Dataset.
//
// Description:
//
//	Reads the file at path, infers per-column types, and validates that the
//	required grade and class columns are present. Any failure here means the
//	service has no data to serve; callers surface it as dataset-unavailable.
//
// Outputs:
//   - *Dataset: The loaded snapshot.
//   - error: Non-nil if the file is missing, malformed, or lacks the
//     required columns.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: opening %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("roster: loading %s: %w", path, err)
	}
	ds.source = path

	slog.Info("Dataset loaded",
		slog.String("path", path),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.columns)),
	)
	return ds, nil
}

// Parse reads CSV data into a Dataset.
//
// Description:
//
//	The first record is the header; column names are trimmed and lowercased.
//	A column is inferred numeric when every non-empty cell parses as a
//	float, in which case its values are stored as float64 (mirrors the
//	grade/quiz_score coercion the service has always done, generalized to
//	any all-numeric column). Malformed rows are skipped with a warning
//	rather than failing the whole load.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var raw [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Skipping malformed CSV row", slog.String("error", err.Error()))
			continue
		}
		if len(record) > len(columns) {
			record = record[:len(columns)]
		}
		raw = append(raw, record)
	}

	numeric := inferNumericColumns(columns, raw)

	rows := make([]Row, 0, len(raw))
	for _, record := range raw {
		row := make(Row, len(columns))
		for i, col := range columns {
			if i >= len(record) {
				break
			}
			cell := strings.TrimSpace(record[i])
			if numeric[col] {
				if cell == "" {
					continue
				}
				f, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					continue
				}
				row[col] = f
			} else {
				row[col] = cell
			}
		}
		rows = append(rows, row)
	}

	ds := &Dataset{
		columns:  columns,
		numeric:  numeric,
		rows:     rows,
		loadedAt: time.Now(),
	}

	if err := validateStructure(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// inferNumericColumns marks a column numeric when it has at least one value
// and every non-empty cell parses as a float.
func inferNumericColumns(columns []string, raw [][]string) map[string]bool {
	numeric := make(map[string]bool, len(columns))
	for i, col := range columns {
		sawValue := false
		allNumeric := true
		for _, record := range raw {
			if i >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			sawValue = true
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				allNumeric = false
				break
			}
		}
		numeric[col] = sawValue && allNumeric
	}
	return numeric
}

// validateStructure checks the minimum schema contract: a grade column and a
// class column must exist for role scoping to mean anything.
func validateStructure(ds *Dataset) error {
	have := make(map[string]bool, len(ds.columns))
	for _, c := range ds.columns {
		have[c] = true
	}
	for _, required := range []string{ColumnGrade, ColumnClass} {
		if !have[required] {
			return fmt.Errorf("required column %q is missing", required)
		}
	}
	return nil
}
